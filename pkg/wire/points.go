package wire

import (
	"fmt"
	"math"
)

// PointKind identifies which value array a Points message carries.
type PointKind int

const (
	KindUnknown PointKind = iota
	KindDouble
	KindString
	KindInt
	KindUint64
)

func (k PointKind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint64:
		return "uint64"
	default:
		return "unknown"
	}
}

// DoublePoints holds float64 values.
type DoublePoints struct {
	Points []float64
}

// StringPoints holds string values.
type StringPoints struct {
	Points []string
}

// IntPoints holds int64 values.
type IntPoints struct {
	Points []int64
}

// Uint64Points holds uint64 values.
type Uint64Points struct {
	Points []uint64
}

// Points is a column of timestamps paired with exactly one populated value array.
type Points struct {
	Timestamps []Timestamp

	Double *DoublePoints
	String *StringPoints
	Int    *IntPoints
	Uint64 *Uint64Points
}

// NewDoublePoints builds validated double points.
func NewDoublePoints(ts []Timestamp, values []float64) (Points, error) {
	p := Points{Timestamps: ts, Double: &DoublePoints{Points: values}}
	return p, p.Validate()
}

// NewStringPoints builds validated string points.
func NewStringPoints(ts []Timestamp, values []string) (Points, error) {
	p := Points{Timestamps: ts, String: &StringPoints{Points: values}}
	return p, p.Validate()
}

// NewIntPoints builds validated int points.
func NewIntPoints(ts []Timestamp, values []int64) (Points, error) {
	p := Points{Timestamps: ts, Int: &IntPoints{Points: values}}
	return p, p.Validate()
}

// NewUint64Points builds validated uint64 points.
func NewUint64Points(ts []Timestamp, values []uint64) (Points, error) {
	p := Points{Timestamps: ts, Uint64: &Uint64Points{Points: values}}
	return p, p.Validate()
}

// Kind returns the populated variant, or KindUnknown when zero or several are set.
func (p Points) Kind() PointKind {
	kind := KindUnknown
	set := 0

	if p.Double != nil {
		kind = KindDouble
		set++
	}
	if p.String != nil {
		kind = KindString
		set++
	}
	if p.Int != nil {
		kind = KindInt
		set++
	}
	if p.Uint64 != nil {
		kind = KindUint64
		set++
	}

	if set != 1 {
		return KindUnknown
	}

	return kind
}

// Len is the number of values in the populated variant.
func (p Points) Len() int {
	switch p.Kind() {
	case KindDouble:
		return len(p.Double.Points)
	case KindString:
		return len(p.String.Points)
	case KindInt:
		return len(p.Int.Points)
	case KindUint64:
		return len(p.Uint64.Points)
	default:
		return 0
	}
}

// Validate enforces exactly one populated variant, matching lengths and valid timestamps.
func (p Points) Validate() error {
	var variants []string
	if p.Double != nil {
		variants = append(variants, "double_points")
	}
	if p.String != nil {
		variants = append(variants, "string_points")
	}
	if p.Int != nil {
		variants = append(variants, "int_points")
	}
	if p.Uint64 != nil {
		variants = append(variants, "uint64_points")
	}

	switch len(variants) {
	case 0:
		return decodeErr("points", "no value variant is set")
	case 1:
	default:
		return decodeErr("points", fmt.Sprintf("multiple value variants are set: %v", variants))
	}

	if n := p.Len(); n != len(p.Timestamps) {
		return decodeErr("points."+variants[0],
			fmt.Sprintf("length %d does not match %d timestamps", n, len(p.Timestamps)))
	}

	for i, ts := range p.Timestamps {
		if err := ts.Validate(); err != nil {
			return &DecodeError{Field: fmt.Sprintf("points.timestamps[%d]", i), Reason: "invalid timestamp", Err: err}
		}
	}

	return nil
}

// Equal reports exact equality. Doubles compare by bit pattern so NaN payloads and signed
// zeros are distinguished.
func (p Points) Equal(o Points) bool {
	if p.Kind() != o.Kind() || len(p.Timestamps) != len(o.Timestamps) {
		return false
	}

	for i := range p.Timestamps {
		if p.Timestamps[i] != o.Timestamps[i] {
			return false
		}
	}

	switch p.Kind() {
	case KindDouble:
		if len(p.Double.Points) != len(o.Double.Points) {
			return false
		}
		for i, v := range p.Double.Points {
			if math.Float64bits(v) != math.Float64bits(o.Double.Points[i]) {
				return false
			}
		}
	case KindString:
		return equalSlices(p.String.Points, o.String.Points)
	case KindInt:
		return equalSlices(p.Int.Points, o.Int.Points)
	case KindUint64:
		return equalSlices(p.Uint64.Points, o.Uint64.Points)
	default:
		return false
	}

	return true
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
