package expr

import (
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// NumericExpr is the fluent builder over numeric expression trees. It is a value: every method
// returns a new expression and leaves the receiver untouched.
//
// Errors are sticky. An invalid channel or a zero NumericExpr operand poisons the result, and
// Node reports the first error. Parametrized operators validate their literals and return the
// error directly.
type NumericExpr struct {
	node Node
	err  error
}

// From wraps an existing numeric tree. Enum and range trees have their own builders.
func From(n Node) NumericExpr {
	if n == nil {
		return NumericExpr{err: ErrNilNode}
	}

	if got := TypeOf(n); got != "" && got != SeriesNumeric {
		return NumericExpr{err: &SeriesTypeError{Want: []SeriesType{SeriesNumeric}, Got: got}}
	}

	return NumericExpr{node: n}
}

// Invalid is an expression that fails with err wherever it is used.
func Invalid(err error) NumericExpr {
	if err == nil {
		err = ErrNilNode
	}

	return NumericExpr{err: err}
}

// FromRef wraps a channel ref in a leaf.
func FromRef(ref channels.ChannelRef) NumericExpr {
	return wrap(NewLeaf(ref))
}

// AssetChannel reads a channel in an asset's data scope. The ref is unresolved: the scope's
// default tags are applied by ResolveChannels or by the remote evaluator.
func AssetChannel(assetRID, scope, name string, additionalTags map[string]string) NumericExpr {
	return FromRef(channels.AssetChannel(assetRID, scope, name, additionalTags))
}

// RunChannel reads a channel in a run's data scope.
func RunChannel(runRID, scope, name string, additionalTags map[string]string) NumericExpr {
	return FromRef(channels.RunChannel(runRID, scope, name, additionalTags))
}

// DatasourceChannel reads a datasource channel.
func DatasourceChannel(datasourceRID, name string, tags map[string]string) NumericExpr {
	return FromRef(channels.DatasourceChannel(datasourceRID, name, tags))
}

// Channel reads an already resolved catalog entry, merging its scope defaults with tags.
// Explicit tags win on collision.
func Channel(resolved channels.Resolved, tags map[string]string) NumericExpr {
	ref, err := channels.FromResolved(resolved, tags, channels.MergeOverride)
	if err != nil {
		return NumericExpr{err: err}
	}

	return FromRef(ref)
}

// Var is a series placeholder, used inside module definitions.
func Var(name string) NumericExpr {
	return wrap(NewVariable(name))
}

// Ref refers to a variable of the compute request context. Callers define it with
// compute.WithVariable; names starting with _shared_ belong to the planner.
func Ref(name string) NumericExpr {
	return wrap(NewReference(name))
}

// Node returns the built tree, or the first error hit while building it.
func (e NumericExpr) Node() (Node, error) {
	if e.err != nil {
		return nil, e.err
	}

	if e.node == nil {
		return nil, ErrNilNode
	}

	return e.node, nil
}

// Err returns the sticky build error, if any.
func (e NumericExpr) Err() error {
	_, err := e.Node()
	return err
}

// Equal reports structural equality of two valid expressions.
func (e NumericExpr) Equal(o NumericExpr) bool {
	a, errA := e.Node()
	b, errB := o.Node()

	return errA == nil && errB == nil && Equal(a, b)
}

// Hash is the content hash of the tree, empty for an invalid expression.
func (e NumericExpr) Hash() string {
	n, err := e.Node()
	if err != nil {
		return ""
	}

	return Hash(n)
}

func (e NumericExpr) String() string {
	n, err := e.Node()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}

	return Format(n)
}

func wrap(n Node, err error) NumericExpr {
	return NumericExpr{node: n, err: err}
}

func (e NumericExpr) unary(op Op) NumericExpr {
	n, err := e.Node()
	if err != nil {
		return NumericExpr{err: err}
	}

	return wrap(NewUnary(op, n))
}

func (e NumericExpr) binary(op Op, o NumericExpr) NumericExpr {
	left, err := e.Node()
	if err != nil {
		return NumericExpr{err: err}
	}

	right, err := o.Node()
	if err != nil {
		return NumericExpr{err: err}
	}

	return wrap(NewBinary(op, left, right))
}

func (e NumericExpr) parametrized(op Op, params ...Literal) (NumericExpr, error) {
	n, err := e.Node()
	if err != nil {
		return NumericExpr{err: err}, err
	}

	out, err := NewParametrized(op, n, params...)
	if err != nil {
		return NumericExpr{err: err}, err
	}

	return NumericExpr{node: out}, nil
}

func (e NumericExpr) Plus(o NumericExpr) NumericExpr     { return e.binary(OpPlus, o) }
func (e NumericExpr) Minus(o NumericExpr) NumericExpr    { return e.binary(OpMinus, o) }
func (e NumericExpr) Times(o NumericExpr) NumericExpr    { return e.binary(OpTimes, o) }
func (e NumericExpr) Div(o NumericExpr) NumericExpr      { return e.binary(OpDiv, o) }
func (e NumericExpr) FloorDiv(o NumericExpr) NumericExpr { return e.binary(OpFloorDiv, o) }
func (e NumericExpr) Mod(o NumericExpr) NumericExpr      { return e.binary(OpMod, o) }
func (e NumericExpr) Pow(o NumericExpr) NumericExpr      { return e.binary(OpPow, o) }

// Atan2 is the two-argument arctangent with the receiver as y and x as the second argument.
func (e NumericExpr) Atan2(x NumericExpr) NumericExpr { return e.binary(OpAtan2, x) }

func (e NumericExpr) Abs() NumericExpr             { return e.unary(OpAbs) }
func (e NumericExpr) Neg() NumericExpr             { return e.unary(OpNeg) }
func (e NumericExpr) Sin() NumericExpr             { return e.unary(OpSin) }
func (e NumericExpr) Cos() NumericExpr             { return e.unary(OpCos) }
func (e NumericExpr) Tan() NumericExpr             { return e.unary(OpTan) }
func (e NumericExpr) Asin() NumericExpr            { return e.unary(OpAsin) }
func (e NumericExpr) Acos() NumericExpr            { return e.unary(OpAcos) }
func (e NumericExpr) Sqrt() NumericExpr            { return e.unary(OpSqrt) }
func (e NumericExpr) Ln() NumericExpr              { return e.unary(OpLn) }
func (e NumericExpr) Log10() NumericExpr           { return e.unary(OpLog10) }
func (e NumericExpr) ValueDifference() NumericExpr { return e.unary(OpValueDifference) }

// Scale multiplies every value by k.
func (e NumericExpr) Scale(k float64) NumericExpr {
	out, _ := e.parametrized(OpScale, Scalar(k))
	return out
}

// Offset adds k to every value.
func (e NumericExpr) Offset(k float64) NumericExpr {
	out, _ := e.parametrized(OpOffset, Scalar(k))
	return out
}

// Derivative is the rate of change per unit.
func (e NumericExpr) Derivative(unit TimeUnit) (NumericExpr, error) {
	return e.parametrized(OpDerivative, unit)
}

// Integral accumulates value times elapsed unit from start.
func (e NumericExpr) Integral(start wire.Timestamp, unit TimeUnit) (NumericExpr, error) {
	return e.parametrized(OpIntegral, Instant(start), unit)
}

// CumulativeSum sums values from start.
func (e NumericExpr) CumulativeSum(start wire.Timestamp) (NumericExpr, error) {
	return e.parametrized(OpCumulativeSum, Instant(start))
}

// TimeDifference is the time between consecutive points, in unit. An empty unit leaves the
// unit to the evaluator.
func (e NumericExpr) TimeDifference(unit TimeUnit) (NumericExpr, error) {
	if unit == "" {
		return e.parametrized(OpTimeDifference)
	}

	return e.parametrized(OpTimeDifference, unit)
}

// Rolling applies stat over a trailing window.
func (e NumericExpr) Rolling(window time.Duration, stat RollingStat) (NumericExpr, error) {
	return e.parametrized(OpRolling, Duration(window), stat)
}

// Add is the operator form of a + b.
func Add(a, b NumericExpr) NumericExpr { return a.binary(OpPlus, b) }

// Sub is the operator form of a - b.
func Sub(a, b NumericExpr) NumericExpr { return a.binary(OpMinus, b) }

// Mul is the operator form of a * b.
func Mul(a, b NumericExpr) NumericExpr { return a.binary(OpTimes, b) }

// Quo is the operator form of a / b.
func Quo(a, b NumericExpr) NumericExpr { return a.binary(OpDiv, b) }

// Rem is the operator form of a % b.
func Rem(a, b NumericExpr) NumericExpr { return a.binary(OpMod, b) }

// FloorQuo is the operator form of a // b.
func FloorQuo(a, b NumericExpr) NumericExpr { return a.binary(OpFloorDiv, b) }

// Power is the operator form of a ** b.
func Power(a, b NumericExpr) NumericExpr { return a.binary(OpPow, b) }

// Absolute is the operator form of abs(a).
func Absolute(a NumericExpr) NumericExpr { return a.unary(OpAbs) }

// Negate is the operator form of -a.
func Negate(a NumericExpr) NumericExpr { return a.unary(OpNeg) }

// Sum adds two or more series pointwise.
func Sum(inputs ...NumericExpr) NumericExpr { return nary(OpSum, inputs) }

// Product multiplies two or more series pointwise.
func Product(inputs ...NumericExpr) NumericExpr { return nary(OpProduct, inputs) }

// Min is the pointwise minimum of two or more series.
func Min(inputs ...NumericExpr) NumericExpr { return nary(OpMin, inputs) }

// Max is the pointwise maximum of two or more series.
func Max(inputs ...NumericExpr) NumericExpr { return nary(OpMax, inputs) }

// Mean is the pointwise mean of two or more series.
func Mean(inputs ...NumericExpr) NumericExpr { return nary(OpMean, inputs) }

func nary(op Op, inputs []NumericExpr) NumericExpr {
	nodes := make([]Node, len(inputs))

	for i, in := range inputs {
		n, err := in.Node()
		if err != nil {
			return NumericExpr{err: err}
		}
		nodes[i] = n
	}

	return wrap(NewNAry(op, nodes...))
}
