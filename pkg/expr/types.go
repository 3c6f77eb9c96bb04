package expr

import (
	"fmt"
	"strings"
)

// SeriesType is the kind of series a node evaluates to.
type SeriesType string

const (
	// SeriesNumeric is a series of float values.
	SeriesNumeric SeriesType = "numeric"
	// SeriesEnum is a series of categorical string values.
	SeriesEnum SeriesType = "enum"
	// SeriesRanges is a set of time intervals, such as the spans where a threshold holds.
	SeriesRanges SeriesType = "ranges"
)

// TypeOf returns the series type of n. A context reference is typed by the request that
// defines it and reports the empty type, which every operator input accepts.
func TypeOf(n Node) SeriesType {
	switch v := n.(type) {
	case Leaf:
		if v.Type == SeriesEnum {
			return SeriesEnum
		}

		return SeriesNumeric
	case Variable:
		return SeriesNumeric
	case Reference:
		return ""
	case Unary:
		return v.Op.Result()
	case Binary:
		if v.Op == OpFilter {
			return TypeOf(v.Left)
		}

		return v.Op.Result()
	case Parametrized:
		return v.Op.Result()
	case NAry:
		return v.Op.Result()
	default:
		return ""
	}
}

// accepts lists the series types op takes at input index.
func accepts(op Op, index int) []SeriesType {
	if op == OpFilter {
		if index == 0 {
			return []SeriesType{SeriesNumeric, SeriesEnum}
		}

		return []SeriesType{SeriesRanges}
	}

	if in := opSpecs[op].in; in != "" {
		return []SeriesType{in}
	}

	return []SeriesType{SeriesNumeric}
}

func checkInput(op Op, index int, n Node) error {
	got := TypeOf(n)
	if got == "" {
		return nil
	}

	want := accepts(op, index)
	for _, w := range want {
		if got == w {
			return nil
		}
	}

	return &SeriesTypeError{Op: op, Index: index, Want: want, Got: got}
}

// SeriesTypeError reports an operator input of the wrong series type, such as a range set
// added to a number.
type SeriesTypeError struct {
	Op    Op
	Index int
	Want  []SeriesType
	Got   SeriesType
}

func (e *SeriesTypeError) Error() string {
	want := make([]string, len(e.Want))
	for i, w := range e.Want {
		want[i] = string(w)
	}

	if e.Op == "" {
		return fmt.Sprintf("expected %s series, got %s", strings.Join(want, " or "), e.Got)
	}

	return fmt.Sprintf("%s: input %d: expected %s series, got %s", e.Op, e.Index, strings.Join(want, " or "), e.Got)
}

// Is matches ErrSeriesType.
func (e *SeriesTypeError) Is(target error) bool {
	return target == ErrSeriesType
}
