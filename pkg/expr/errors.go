package expr

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrUnknownOp        = errors.New("unknown operator")
	ErrArity            = errors.New("operator arity mismatch")
	ErrNilNode          = errors.New("nil expression node")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidTimeUnit  = errors.New("invalid time unit")
	ErrDecode           = errors.New("malformed expression")
	ErrParse            = errors.New("expression parse error")
	ErrSeriesType       = errors.New("series type mismatch")
)

// InvalidTimeUnitError reports a time unit outside the enumerated set.
type InvalidTimeUnitError struct {
	Op   Op
	Unit string
}

func (e *InvalidTimeUnitError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("invalid time unit %q (want one of ns, us, ms, s, m, h, d)", e.Unit)
	}

	return fmt.Sprintf("%s: invalid time unit %q (want one of ns, us, ms, s, m, h, d)", e.Op, e.Unit)
}

// Is matches ErrInvalidTimeUnit.
func (e *InvalidTimeUnitError) Is(target error) bool {
	return target == ErrInvalidTimeUnit
}

// InvalidParameterError reports a bad literal argument to a parametrized operator.
type InvalidParameterError struct {
	Op     Op
	Index  int
	Reason string
	Err    error
}

func (e *InvalidParameterError) Error() string {
	msg := fmt.Sprintf("%s: parameter %d: %s", e.Op, e.Index, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is matches ErrInvalidParameter.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

func (e *InvalidParameterError) Unwrap() error {
	return e.Err
}
