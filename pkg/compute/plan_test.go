package compute

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/expr"
)

func nodes(t *testing.T, exprs ...expr.NumericExpr) []expr.Node {
	t.Helper()

	out := make([]expr.Node, len(exprs))
	for i, e := range exprs {
		n, err := e.Node()
		require.NoError(t, err)
		out[i] = n
	}

	return out
}

// expand inlines every context variable back into the expressions.
func expand(p *Plan) []expr.Node {
	vars := map[string]expr.Node{}
	for _, v := range p.Variables {
		vars[v.Name] = v.Expression
	}

	var inline func(expr.Node) expr.Node
	inline = func(n expr.Node) expr.Node {
		return expr.Rewrite(n, func(node expr.Node) (expr.Node, bool) {
			ref, ok := node.(expr.Reference)
			if !ok {
				return nil, false
			}
			return inline(vars[ref.Name]), true
		})
	}

	out := make([]expr.Node, len(p.Expressions))
	for i, e := range p.Expressions {
		out[i] = inline(e)
	}

	return out
}

func TestNewPlan_NoHoist(t *testing.T) {
	in := nodes(t, roll(), roll())

	p, err := NewPlan(in, false)
	require.NoError(t, err)
	assert.Empty(t, p.Variables)
	assert.True(t, expr.Equal(in[0], p.Expressions[0]))
}

func TestNewPlan_NothingShared(t *testing.T) {
	p, err := NewPlan(nodes(t, channel("q1").Abs(), channel("q2").Abs()), true)
	require.NoError(t, err)
	assert.Empty(t, p.Variables)
}

func TestNewPlan_HoistsWithinOneExpression(t *testing.T) {
	square := channel("q1").Times(channel("q1"))
	in := nodes(t, square.Plus(square.Sqrt()))

	p, err := NewPlan(in, true)
	require.NoError(t, err)
	require.Len(t, p.Variables, 1)
	assert.True(t, strings.HasPrefix(p.Variables[0].Name, hoistPrefix))
	assert.True(t, expr.Equal(nodes(t, square)[0], p.Variables[0].Expression))

	assert.True(t, expr.Equal(in[0], expand(p)[0]))
}

func TestNewPlan_NestedSharing(t *testing.T) {
	inner := channel("q1").Times(channel("q2"))
	outer := inner.Scale(2).Abs()

	a := outer.Plus(inner)
	b := outer.Minus(channel("q3"))
	c := inner.Sqrt()

	in := nodes(t, a, b, c)

	p, err := NewPlan(in, true)
	require.NoError(t, err)
	require.Len(t, p.Variables, 2)

	// The inner product is defined first since the outer variable references it.
	first, second := p.Variables[0], p.Variables[1]
	assert.Empty(t, expr.References(first.Expression))
	assert.Equal(t, []string{first.Name}, expr.References(second.Expression))

	for i, e := range expand(p) {
		assert.True(t, expr.Equal(in[i], e), "expression %d", i)
	}

	again, err := NewPlan(in, true)
	require.NoError(t, err)
	assert.Equal(t, p.Variables[0].Name, again.Variables[0].Name)
	assert.Equal(t, p.Variables[1].Name, again.Variables[1].Name)
}

func TestNewPlan_CallerVariables(t *testing.T) {
	rollNode := nodes(t, roll())[0]
	biased := nodes(t, expr.Ref("roll").Minus(channel("q4")))[0]

	vars := []Variable{
		{Name: "roll_bias", Expression: biased},
		{Name: "roll", Expression: rollNode},
	}
	in := nodes(t, expr.Ref("roll_bias").Abs())

	for _, hoist := range []bool{false, true} {
		p, err := NewPlan(in, hoist, vars...)
		require.NoError(t, err)
		require.Len(t, p.Variables, 2)

		// roll_bias references roll, so roll comes first.
		assert.Equal(t, "roll", p.Variables[0].Name)
		assert.Equal(t, "roll_bias", p.Variables[1].Name)

		want := nodes(t, roll().Minus(channel("q4")).Abs())[0]
		assert.True(t, expr.Equal(want, expand(p)[0]))
	}
}
