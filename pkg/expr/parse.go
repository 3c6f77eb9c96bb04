package expr

import (
	"fmt"
	"strconv"
	"time"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/literal"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Parse builds an expression from infix source such as
//
//	atan2(scale(w*x + y*z, 2), offset(scale(x*x + y*y, -2), 1))
//
// Identifiers are looked up in env. Numeric literals fold into scale and offset nodes
// (x*2, 2*x, x/2, x+1, x-1, 1-x); any other use of a bare number is an error. div and mod are
// floor division and modulo.
//
// Comparisons against a number build threshold ranges (x > 1.5), which combine with &&, || and
// ! and are consumed by filter(x, ranges). The whole expression must be numeric. The tree is the
// same one the equivalent NumericExpr method chain builds.
func Parse(src string, env map[string]NumericExpr) (NumericExpr, error) {
	tree, err := parser.ParseExpr("expr", src)
	if err != nil {
		return NumericExpr{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	p := &exprParser{env: env}

	v, err := p.eval(tree)
	if err != nil {
		return NumericExpr{}, err
	}

	return p.series(v, tree)
}

type operandKind int

const (
	operandSeries operandKind = iota
	operandNumber
	operandString
	operandRanges
)

type operand struct {
	kind   operandKind
	series NumericExpr
	ranges RangeExpr
	number float64
	text   string
	raw    string
}

func seriesOperand(e NumericExpr) (operand, error) {
	return operand{kind: operandSeries, series: e}, e.Err()
}

func rangesOperand(r RangeExpr) (operand, error) {
	return operand{kind: operandRanges, ranges: r}, r.Err()
}

type exprParser struct {
	env map[string]NumericExpr
}

func (p *exprParser) errorf(n ast.Node, format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s", ErrParse, n.Pos(), fmt.Sprintf(format, args...))
}

func (p *exprParser) eval(n ast.Expr) (operand, error) {
	switch v := n.(type) {
	case *ast.ParenExpr:
		return p.eval(v.X)
	case *ast.Ident:
		e, ok := p.env[v.Name]
		if !ok {
			return operand{}, p.errorf(v, "unknown identifier %q", v.Name)
		}

		if err := e.Err(); err != nil {
			return operand{}, p.errorf(v, "binding %q: %v", v.Name, err)
		}

		return operand{kind: operandSeries, series: e}, nil
	case *ast.BasicLit:
		return p.literal(v)
	case *ast.UnaryExpr:
		return p.unary(v)
	case *ast.BinaryExpr:
		return p.binary(v)
	case *ast.CallExpr:
		return p.call(v)
	default:
		return operand{}, p.errorf(n, "unsupported syntax %T", n)
	}
}

func (p *exprParser) literal(v *ast.BasicLit) (operand, error) {
	switch v.Kind {
	case token.INT, token.FLOAT:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return operand{}, p.errorf(v, "invalid number %s", v.Value)
		}

		return operand{kind: operandNumber, number: f, raw: v.Value}, nil
	case token.STRING:
		s, err := literal.Unquote(v.Value)
		if err != nil {
			return operand{}, p.errorf(v, "invalid string %s", v.Value)
		}

		return operand{kind: operandString, text: s}, nil
	default:
		return operand{}, p.errorf(v, "unsupported literal %s", v.Value)
	}
}

func (p *exprParser) unary(v *ast.UnaryExpr) (operand, error) {
	x, err := p.eval(v.X)
	if err != nil {
		return operand{}, err
	}

	switch {
	case v.Op == token.ADD && (x.kind == operandSeries || x.kind == operandNumber):
		return x, nil
	case v.Op == token.SUB && x.kind == operandNumber:
		return operand{kind: operandNumber, number: -x.number, raw: "-" + x.raw}, nil
	case v.Op == token.SUB && x.kind == operandSeries:
		return operand{kind: operandSeries, series: x.series.Neg()}, nil
	case v.Op == token.NOT && x.kind == operandRanges:
		return rangesOperand(x.ranges.Invert())
	default:
		return operand{}, p.errorf(v, "unsupported unary operator %s", v.Op)
	}
}

func (p *exprParser) binary(v *ast.BinaryExpr) (operand, error) {
	left, err := p.eval(v.X)
	if err != nil {
		return operand{}, err
	}

	right, err := p.eval(v.Y)
	if err != nil {
		return operand{}, err
	}

	if left.kind == operandString || right.kind == operandString {
		return operand{}, p.errorf(v, "strings cannot be used with %s", v.Op)
	}

	if left.kind == operandNumber && right.kind == operandNumber {
		return operand{}, p.errorf(v, "expression has no series operand")
	}

	if v.Op == token.LAND || v.Op == token.LOR {
		if left.kind != operandRanges || right.kind != operandRanges {
			return operand{}, p.errorf(v, "%s combines ranges, not series", v.Op)
		}

		if v.Op == token.LAND {
			return rangesOperand(left.ranges.Intersect(right.ranges))
		}

		return rangesOperand(left.ranges.Union(right.ranges))
	}

	if left.kind == operandRanges || right.kind == operandRanges {
		return operand{}, p.errorf(v, "ranges cannot be used with %s", v.Op)
	}

	if cmp, ok := comparisons[v.Op]; ok {
		return p.threshold(v, left, right, cmp)
	}

	series := seriesOperand

	switch v.Op {
	case token.ADD:
		switch {
		case right.kind == operandNumber:
			return series(left.series.Offset(right.number))
		case left.kind == operandNumber:
			return series(right.series.Offset(left.number))
		default:
			return series(Add(left.series, right.series))
		}
	case token.SUB:
		switch {
		case right.kind == operandNumber:
			return series(left.series.Offset(-right.number))
		case left.kind == operandNumber:
			return series(right.series.Neg().Offset(left.number))
		default:
			return series(Sub(left.series, right.series))
		}
	case token.MUL:
		switch {
		case right.kind == operandNumber:
			return series(left.series.Scale(right.number))
		case left.kind == operandNumber:
			return series(right.series.Scale(left.number))
		default:
			return series(Mul(left.series, right.series))
		}
	case token.QUO:
		switch {
		case right.kind == operandNumber:
			if right.number == 0 {
				return operand{}, p.errorf(v, "division by literal zero")
			}

			return series(left.series.Scale(1 / right.number))
		case left.kind == operandNumber:
			return operand{}, p.errorf(v, "a number cannot be divided by a series")
		default:
			return series(Quo(left.series, right.series))
		}
	case token.IDIV, token.IMOD:
		if left.kind == operandNumber || right.kind == operandNumber {
			return operand{}, p.errorf(v, "%s needs two series", v.Op)
		}

		if v.Op == token.IDIV {
			return series(FloorQuo(left.series, right.series))
		}

		return series(Rem(left.series, right.series))
	default:
		return operand{}, p.errorf(v, "unsupported operator %s", v.Op)
	}
}

func (p *exprParser) call(v *ast.CallExpr) (operand, error) {
	fn, ok := v.Fun.(*ast.Ident)
	if !ok {
		return operand{}, p.errorf(v, "call target must be a function name")
	}

	args := make([]operand, len(v.Args))
	for i, a := range v.Args {
		arg, err := p.eval(a)
		if err != nil {
			return operand{}, err
		}
		args[i] = arg
	}

	out, err := p.apply(v, fn.Name, args)
	if err != nil {
		return operand{}, err
	}

	var buildErr error

	switch out.kind {
	case operandRanges:
		buildErr = out.ranges.Err()
	default:
		buildErr = out.series.Err()
	}

	if buildErr != nil {
		return operand{}, p.errorf(v, "%s: %v", fn.Name, buildErr)
	}

	return out, nil
}

func (p *exprParser) apply(n ast.Node, name string, args []operand) (operand, error) {
	op := Op(name)
	if name == "neg" {
		op = OpNeg
	}

	switch op {
	case OpThreshold:
		if len(args) != 3 || args[1].kind != operandNumber || args[2].kind != operandString {
			return operand{}, p.errorf(n, "threshold expects a series, a number and a comparison")
		}

		return p.threshold(n, args[0], args[1], ThresholdOperator(args[2].text))
	case OpIntersect, OpUnion:
		if len(args) < 2 {
			return operand{}, p.errorf(n, "%s expects at least 2 ranges", name)
		}

		rest := make([]RangeExpr, len(args)-1)
		for i, a := range args {
			if a.kind != operandRanges {
				return operand{}, p.errorf(n, "%s: argument %d must be ranges", name, i)
			}

			if i > 0 {
				rest[i-1] = a.ranges
			}
		}

		if op == OpIntersect {
			return operand{kind: operandRanges, ranges: args[0].ranges.Intersect(rest...)}, nil
		}

		return operand{kind: operandRanges, ranges: args[0].ranges.Union(rest...)}, nil
	case OpInvert:
		if err := p.want(n, name, args, operandRanges); err != nil {
			return operand{}, err
		}

		return operand{kind: operandRanges, ranges: args[0].ranges.Invert()}, nil
	case OpFilter:
		if err := p.want(n, name, args, operandSeries, operandRanges); err != nil {
			return operand{}, err
		}

		return operand{kind: operandSeries, series: args[0].series.Filter(args[1].ranges)}, nil
	}

	var out NumericExpr

	switch op.Arity() {
	case ArityUnary:
		if err := p.want(n, name, args, operandSeries); err != nil {
			return operand{}, err
		}

		out = args[0].series.unary(op)
	case ArityBinary:
		if err := p.want(n, name, args, operandSeries, operandSeries); err != nil {
			return operand{}, err
		}

		out = args[0].series.binary(op, args[1].series)
	case ArityNAry:
		inputs := make([]NumericExpr, len(args))
		for i, a := range args {
			if a.kind != operandSeries {
				return operand{}, p.errorf(n, "%s: argument %d must be a series", name, i)
			}
			inputs[i] = a.series
		}

		out = nary(op, inputs)
	case ArityParametrized:
		var err error

		out, err = p.parametrized(n, op, args)
		if err != nil {
			return operand{}, err
		}
	default:
		return operand{}, p.errorf(n, "unknown function %q", name)
	}

	return operand{kind: operandSeries, series: out}, nil
}

//nolint:gochecknoglobals // Static comparison table
var comparisons = map[token.Token]ThresholdOperator{
	token.GTR: GreaterThan,
	token.GEQ: GreaterThanOrEqual,
	token.LSS: LessThan,
	token.LEQ: LessThanOrEqual,
	token.EQL: EqualTo,
	token.NEQ: NotEqualTo,
}

// threshold builds series <cmp> number, mirroring number <cmp> series.
func (p *exprParser) threshold(n ast.Node, left, right operand, cmp ThresholdOperator) (operand, error) {
	switch {
	case left.kind == operandSeries && right.kind == operandNumber:
	case left.kind == operandNumber && right.kind == operandSeries:
		left, right, cmp = right, left, cmp.Mirror()
	default:
		return operand{}, p.errorf(n, "%s compares a series with a number", cmp)
	}

	r, err := left.series.Threshold(right.number, cmp)
	if err != nil {
		return operand{}, fmt.Errorf("%w at %s: %w", ErrParse, n.Pos(), err)
	}

	return operand{kind: operandRanges, ranges: r}, nil
}

func (p *exprParser) parametrized(n ast.Node, op Op, args []operand) (NumericExpr, error) {
	spec := opSpecs[op]
	kinds := spec.params

	given := len(args) - 1
	if given < len(kinds)-spec.optional || given > len(kinds) || args[0].kind != operandSeries {
		return NumericExpr{}, p.errorf(n, "%s expects a series and %d parameters", op, len(kinds))
	}

	params := make([]Literal, given)
	for i := range given {
		lit, err := p.param(n, op, i, kinds[i], args[i+1])
		if err != nil {
			return NumericExpr{}, err
		}
		params[i] = lit
	}

	out, err := args[0].series.parametrized(op, params...)
	if err != nil {
		return NumericExpr{}, fmt.Errorf("%w at %s: %w", ErrParse, n.Pos(), err)
	}

	return out, nil
}

func (p *exprParser) param(n ast.Node, op Op, i int, kind LiteralKind, arg operand) (Literal, error) {
	bad := func() error {
		return p.errorf(n, "%s parameter %d must be a %s", op, i, kind)
	}

	switch kind {
	case KindScalar:
		if arg.kind != operandNumber {
			return nil, bad()
		}

		return Scalar(arg.number), nil
	case KindTimeUnit:
		if arg.kind != operandString {
			return nil, bad()
		}

		return TimeUnit(arg.text), nil
	case KindStat:
		if arg.kind != operandString {
			return nil, bad()
		}

		return RollingStat(arg.text), nil
	case KindDuration:
		if arg.kind != operandString {
			return nil, bad()
		}

		d, err := time.ParseDuration(arg.text)
		if err != nil {
			return nil, p.errorf(n, "%s window: %v", op, err)
		}

		return Duration(d), nil
	case KindInstant:
		switch arg.kind {
		case operandNumber:
			ns, err := strconv.ParseInt(arg.raw, 10, 64)
			if err != nil {
				return nil, p.errorf(n, "%s start must be integral nanoseconds, got %s", op, arg.raw)
			}

			return Instant(wire.FromNanos(ns)), nil
		case operandString:
			t, err := time.Parse(time.RFC3339Nano, arg.text)
			if err != nil {
				return nil, p.errorf(n, "%s start: %v", op, err)
			}

			return Instant(wire.FromTime(t)), nil
		default:
			return nil, bad()
		}
	default:
		return nil, bad()
	}
}

func (p *exprParser) want(n ast.Node, name string, args []operand, kinds ...operandKind) error {
	if len(args) != len(kinds) {
		return p.errorf(n, "%s expects %d arguments, got %d", name, len(kinds), len(args))
	}

	for i, k := range kinds {
		if args[i].kind != k {
			want := "a series"
			if k == operandRanges {
				want = "ranges"
			}

			return p.errorf(n, "%s: argument %d must be %s", name, i, want)
		}
	}

	return nil
}

func (p *exprParser) series(v operand, n ast.Node) (NumericExpr, error) {
	if v.kind != operandSeries {
		return NumericExpr{}, p.errorf(n, "expression must evaluate to a numeric series")
	}

	return v.series, nil
}
