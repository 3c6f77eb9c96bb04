package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix allows the encoding to evolve without colliding with
// identities computed by older clients.
const (
	DomainExpr    = "seriesgraph/expr/v1"
	DomainModule  = "seriesgraph/module/v1"
	DomainRequest = "seriesgraph/request/v1"
)

// HashBytes computes SHA256(domain + 0x00 + data) as lowercase hex.
func HashBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonically encodes v and hashes it under domain.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}

	return HashBytes(domain, data), nil
}
