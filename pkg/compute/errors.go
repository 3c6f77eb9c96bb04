package compute

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrInvalidRange     = errors.New("invalid time range")
	ErrBucketEvaluation = errors.New("bucket evaluation failed")
	ErrMalformedResult  = errors.New("malformed compute result")
	ErrMalformedReply   = errors.New("malformed compute response")
	ErrUnboundParameter = errors.New("expression has unbound module parameters")
	ErrUndefinedVar     = errors.New("undefined context variable")
	ErrInvalidVariable  = errors.New("invalid context variable")
)

// BucketEvaluationError is a per-expression failure reported by the evaluator, or a result that
// failed client-side validation.
type BucketEvaluationError struct {
	Index    int
	ExprHash string
	Code     string
	Message  string
	Err      error
}

func (e *BucketEvaluationError) Error() string {
	hash := e.ExprHash
	if len(hash) > 12 {
		hash = hash[:12]
	}

	msg := fmt.Sprintf("expression %d (%s): %s", e.Index, hash, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is matches ErrBucketEvaluation.
func (e *BucketEvaluationError) Is(target error) bool {
	return target == ErrBucketEvaluation
}

func (e *BucketEvaluationError) Unwrap() error {
	return e.Err
}
