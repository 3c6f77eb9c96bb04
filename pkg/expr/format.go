package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

// Format renders n in the infix syntax accepted by Parse. Channel leaves render as their ref
// string in braces and parse only through bindings.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)

	return b.String()
}

func format(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case Leaf:
		if v.Enum() {
			fmt.Fprintf(b, "{enum %s}", v.Channel.String())

			return
		}

		fmt.Fprintf(b, "{%s}", v.Channel.String())
	case Variable:
		fmt.Fprintf(b, "$%s", v.Name)
	case Reference:
		b.WriteString(v.Name)
	case Unary:
		if v.Op == OpNeg {
			b.WriteString("-")
			formatOperand(b, v.Input)

			return
		}

		call(b, string(v.Op), v.Input)
	case Binary:
		if sym := v.Op.Symbol(); sym != "" {
			formatOperand(b, v.Left)
			fmt.Fprintf(b, " %s ", sym)
			formatOperand(b, v.Right)

			return
		}

		call(b, string(v.Op), v.Left, v.Right)
	case Parametrized:
		b.WriteString(string(v.Op))
		b.WriteString("(")
		format(b, v.Input)

		for _, p := range v.Params {
			b.WriteString(", ")
			b.WriteString(formatLiteral(p))
		}
		b.WriteString(")")
	case NAry:
		call(b, string(v.Op), v.Inputs...)
	}
}

func call(b *strings.Builder, name string, args ...Node) {
	b.WriteString(name)
	b.WriteString("(")

	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, a)
	}
	b.WriteString(")")
}

// formatOperand parenthesises infix subexpressions so the rendering never depends on precedence.
func formatOperand(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case Binary:
		if v.Op.Symbol() != "" {
			b.WriteString("(")
			format(b, n)
			b.WriteString(")")

			return
		}
	case Unary:
		if v.Op == OpNeg {
			b.WriteString("(")
			format(b, n)
			b.WriteString(")")

			return
		}
	}

	format(b, n)
}

func formatLiteral(p Literal) string {
	switch v := p.(type) {
	case Scalar:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case TimeUnit:
		return strconv.Quote(string(v))
	case RollingStat:
		return strconv.Quote(string(v))
	case ThresholdOperator:
		return strconv.Quote(string(v))
	case Duration:
		return strconv.Quote(time.Duration(v).String())
	case Instant:
		ts := wire.Timestamp(v)
		if ts.Picos == 0 {
			return strconv.FormatInt(ts.UnixNanos(), 10)
		}

		return strconv.Quote(ts.String())
	default:
		return fmt.Sprintf("%v", p)
	}
}
