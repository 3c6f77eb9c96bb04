package compute

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethpandaops/seriesgraph/pkg/canonical"
	"github.com/ethpandaops/seriesgraph/pkg/expr"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Request is one compute round trip: a plan evaluated over [Start, End].
type Request struct {
	Start   wire.Timestamp
	End     wire.Timestamp
	Buckets int
	Plan    *Plan
}

func timestampValue(ts wire.Timestamp) map[string]any {
	return map[string]any{"seconds": ts.Seconds, "nanos": int64(ts.Nanos), "picos": int64(ts.Picos)}
}

// Value is the canonical request document.
func (r *Request) Value() map[string]any {
	exprs := make([]any, len(r.Plan.Expressions))
	for i, e := range r.Plan.Expressions {
		exprs[i] = expr.Value(e)
	}

	vars := make([]any, len(r.Plan.Variables))
	for i, v := range r.Plan.Variables {
		vars[i] = map[string]any{"name": v.Name, "expression": expr.Value(v.Expression)}
	}

	return map[string]any{
		"start":       timestampValue(r.Start),
		"end":         timestampValue(r.End),
		"buckets":     int64(r.Buckets),
		"context":     map[string]any{"variables": vars},
		"expressions": exprs,
	}
}

// Marshal returns the canonical JSON body.
func (r *Request) Marshal() ([]byte, error) {
	return canonical.Marshal(r.Value())
}

// Hash identifies the request; it is logged with every round trip.
func (r *Request) Hash() string {
	data, err := r.Marshal()
	if err != nil {
		return ""
	}

	return canonical.HashBytes(canonical.DomainRequest, data)
}

// ResultError is the evaluator's per-expression error body.
type ResultError struct {
	Code    string `json:"errorCode"`
	Message string `json:"message"`
}

// ResultJSON is one element of a compute response. The evaluator may return results in any
// order; Index ties each to its expression.
type ResultJSON struct {
	Index   int             `json:"index"`
	Buckets []Bucket        `json:"buckets,omitempty"`
	Points  json.RawMessage `json:"points,omitempty"`
	Error   *ResultError    `json:"error,omitempty"`
}

// Response is the compute response body.
type Response struct {
	Results []ResultJSON `json:"results"`
}

// decodeResponse parses body and places every result at its index. A missing, duplicate or
// out-of-range index fails the whole response since results could no longer be attributed.
func decodeResponse(body []byte, n int) ([]ResultJSON, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	if len(resp.Results) != n {
		return nil, fmt.Errorf("%w: %d results for %d expressions", ErrMalformedReply, len(resp.Results), n)
	}

	out := make([]ResultJSON, n)
	seen := make([]bool, n)

	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= n {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrMalformedReply, r.Index)
		}

		if seen[r.Index] {
			return nil, fmt.Errorf("%w: duplicate result index %d", ErrMalformedReply, r.Index)
		}

		seen[r.Index] = true
		out[r.Index] = r
	}

	return out, nil
}
