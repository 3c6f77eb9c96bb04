// Package wire implements the typed columnar codec shared by compute results and streamed
// ingestion: timestamps with picosecond precision and single-kind point arrays.
package wire

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrDecode           = errors.New("wire decode failed")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrEmptyChannel     = errors.New("records batch channel is required")
)

// DecodeError reports a malformed message. Field is the dotted path of the offending field.
type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("wire decode: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(field, reason string) *DecodeError {
	return &DecodeError{Field: field, Reason: reason}
}

// prefix rewrites the field path of a nested decode error.
func prefix(parent string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Field: parent + "." + de.Field, Reason: de.Reason, Err: de.Err}
	}

	return err
}
