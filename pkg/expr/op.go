package expr

import (
	"fmt"
	"sort"
	"time"
)

// Op is a compute operator. The set is closed: every operator is listed in opSpecs.
type Op string

// Unary operators
const (
	OpAbs             Op = "abs"
	OpNeg             Op = "negate"
	OpSin             Op = "sin"
	OpCos             Op = "cos"
	OpTan             Op = "tan"
	OpAsin            Op = "asin"
	OpAcos            Op = "acos"
	OpSqrt            Op = "sqrt"
	OpLn              Op = "ln"
	OpLog10           Op = "log10"
	OpValueDifference Op = "value_difference"
	OpInvert          Op = "invert"
)

// Binary operators
const (
	OpPlus     Op = "plus"
	OpMinus    Op = "minus"
	OpTimes    Op = "times"
	OpDiv      Op = "div"
	OpFloorDiv Op = "floor_div"
	OpMod      Op = "modulo"
	OpPow      Op = "power"
	OpAtan2    Op = "atan2"
	OpFilter   Op = "filter"
)

// Parametrized operators
const (
	OpScale          Op = "scale"
	OpOffset         Op = "offset"
	OpDerivative     Op = "derivative"
	OpIntegral       Op = "integral"
	OpCumulativeSum  Op = "cumulative_sum"
	OpTimeDifference Op = "time_difference"
	OpRolling        Op = "rolling"
	OpThreshold      Op = "threshold"
)

// N-ary operators
const (
	OpSum       Op = "sum"
	OpProduct   Op = "product"
	OpMin       Op = "min"
	OpMax       Op = "max"
	OpMean      Op = "mean"
	OpIntersect Op = "intersect"
	OpUnion     Op = "union"
)

// Arity is the node shape an operator builds.
type Arity int

const (
	ArityUnary Arity = iota + 1
	ArityBinary
	ArityParametrized
	ArityNAry
)

func (a Arity) String() string {
	switch a {
	case ArityUnary:
		return "unary"
	case ArityBinary:
		return "binary"
	case ArityParametrized:
		return "parametrized"
	case ArityNAry:
		return "nary"
	default:
		return "unknown"
	}
}

// opSpec describes an operator. Empty in and out mean numeric. The last optional params may
// be omitted.
type opSpec struct {
	arity    Arity
	symbol   string
	params   []LiteralKind
	optional int
	in       SeriesType
	out      SeriesType
}

//nolint:gochecknoglobals // Static operator table
var opSpecs = map[Op]opSpec{
	OpAbs:             {arity: ArityUnary},
	OpNeg:             {arity: ArityUnary, symbol: "-"},
	OpSin:             {arity: ArityUnary},
	OpCos:             {arity: ArityUnary},
	OpTan:             {arity: ArityUnary},
	OpAsin:            {arity: ArityUnary},
	OpAcos:            {arity: ArityUnary},
	OpSqrt:            {arity: ArityUnary},
	OpLn:              {arity: ArityUnary},
	OpLog10:           {arity: ArityUnary},
	OpValueDifference: {arity: ArityUnary},
	OpInvert:          {arity: ArityUnary, in: SeriesRanges, out: SeriesRanges},

	OpPlus:     {arity: ArityBinary, symbol: "+"},
	OpMinus:    {arity: ArityBinary, symbol: "-"},
	OpTimes:    {arity: ArityBinary, symbol: "*"},
	OpDiv:      {arity: ArityBinary, symbol: "/"},
	OpFloorDiv: {arity: ArityBinary},
	OpMod:      {arity: ArityBinary},
	OpPow:      {arity: ArityBinary},
	OpAtan2:    {arity: ArityBinary},
	OpFilter:   {arity: ArityBinary},

	OpScale:          {arity: ArityParametrized, params: []LiteralKind{KindScalar}},
	OpOffset:         {arity: ArityParametrized, params: []LiteralKind{KindScalar}},
	OpDerivative:     {arity: ArityParametrized, params: []LiteralKind{KindTimeUnit}},
	OpIntegral:       {arity: ArityParametrized, params: []LiteralKind{KindInstant, KindTimeUnit}},
	OpCumulativeSum:  {arity: ArityParametrized, params: []LiteralKind{KindInstant}},
	OpTimeDifference: {arity: ArityParametrized, params: []LiteralKind{KindTimeUnit}, optional: 1},
	OpRolling:        {arity: ArityParametrized, params: []LiteralKind{KindDuration, KindStat}},
	OpThreshold:      {arity: ArityParametrized, params: []LiteralKind{KindScalar, KindComparison}, out: SeriesRanges},

	OpSum:     {arity: ArityNAry},
	OpProduct: {arity: ArityNAry},
	OpMin:     {arity: ArityNAry},
	OpMax:     {arity: ArityNAry},
	OpMean:    {arity: ArityNAry},

	OpIntersect: {arity: ArityNAry, in: SeriesRanges, out: SeriesRanges},
	OpUnion:     {arity: ArityNAry, in: SeriesRanges, out: SeriesRanges},
}

// Arity returns the node shape of op, or 0 for an unknown operator.
func (o Op) Arity() Arity {
	return opSpecs[o].arity
}

// Result is the series type op produces. A filter keeps the type of its input, which Result
// reports as numeric.
func (o Op) Result() SeriesType {
	if out := opSpecs[o].out; out != "" {
		return out
	}

	return SeriesNumeric
}

// Symbol is the infix symbol of op, if it has one.
func (o Op) Symbol() string {
	return opSpecs[o].symbol
}

// Ops lists every operator with the given arity.
func Ops(a Arity) []Op {
	var out []Op

	for op, spec := range opSpecs {
		if spec.arity == a {
			out = append(out, op)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func checkOp(op Op, want Arity) error {
	spec, ok := opSpecs[op]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}

	if spec.arity != want {
		return fmt.Errorf("%w: %q is %s, not %s", ErrArity, op, spec.arity, want)
	}

	return nil
}

// TimeUnit is the unit of a rate or time-difference result.
type TimeUnit string

const (
	Nanoseconds  TimeUnit = "ns"
	Microseconds TimeUnit = "us"
	Milliseconds TimeUnit = "ms"
	Seconds      TimeUnit = "s"
	Minutes      TimeUnit = "m"
	Hours        TimeUnit = "h"
	Days         TimeUnit = "d"
)

// Duration returns the length of one unit.
func (u TimeUnit) Duration() time.Duration {
	switch u {
	case Nanoseconds:
		return time.Nanosecond
	case Microseconds:
		return time.Microsecond
	case Milliseconds:
		return time.Millisecond
	case Seconds:
		return time.Second
	case Minutes:
		return time.Minute
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether u is one of the enumerated units.
func (u TimeUnit) Valid() bool {
	return u.Duration() != 0
}

// ParseTimeUnit validates a unit name.
func ParseTimeUnit(s string) (TimeUnit, error) {
	u := TimeUnit(s)
	if !u.Valid() {
		return "", &InvalidTimeUnitError{Unit: s}
	}

	return u, nil
}

// RollingStat is the aggregate computed over a rolling window.
type RollingStat string

const (
	StatMean   RollingStat = "mean"
	StatSum    RollingStat = "sum"
	StatMin    RollingStat = "min"
	StatMax    RollingStat = "max"
	StatCount  RollingStat = "count"
	StatStdDev RollingStat = "std"
)

// Valid reports whether s is one of the enumerated statistics.
func (s RollingStat) Valid() bool {
	switch s {
	case StatMean, StatSum, StatMin, StatMax, StatCount, StatStdDev:
		return true
	default:
		return false
	}
}

// ThresholdOperator compares a numeric series against a threshold.
type ThresholdOperator string

const (
	GreaterThan        ThresholdOperator = ">"
	GreaterThanOrEqual ThresholdOperator = ">="
	LessThan           ThresholdOperator = "<"
	LessThanOrEqual    ThresholdOperator = "<="
	EqualTo            ThresholdOperator = "=="
	NotEqualTo         ThresholdOperator = "!="
)

// Valid reports whether o is one of the enumerated comparisons.
func (o ThresholdOperator) Valid() bool {
	switch o {
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, EqualTo, NotEqualTo:
		return true
	default:
		return false
	}
}

// Mirror is the operator with its operands swapped: 1 < x is x > 1.
func (o ThresholdOperator) Mirror() ThresholdOperator {
	switch o {
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	default:
		return o
	}
}
