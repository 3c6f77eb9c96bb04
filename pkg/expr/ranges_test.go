package expr

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

func mustThreshold(t *testing.T, e NumericExpr, value float64, op ThresholdOperator) RangeExpr {
	t.Helper()

	r, err := e.Threshold(value, op)
	require.NoError(t, err)

	return r
}

func TestThreshold(t *testing.T) {
	_, x, _, _ := quaternion()

	r := mustThreshold(t, x, 0.5, GreaterThanOrEqual)
	n, err := r.Node()
	require.NoError(t, err)

	p, ok := n.(Parametrized)
	require.True(t, ok)
	assert.Equal(t, OpThreshold, p.Op)
	assert.Equal(t, []Literal{Scalar(0.5), GreaterThanOrEqual}, p.Params)
	assert.Equal(t, SeriesRanges, TypeOf(n))

	_, err = x.Threshold(1, ThresholdOperator("=~"))
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRangeCombinators(t *testing.T) {
	w, x, _, _ := quaternion()

	high := mustThreshold(t, w, 0.5, GreaterThan)
	low := mustThreshold(t, x, -0.5, LessThan)

	t.Run("intersect", func(t *testing.T) {
		n, err := high.Intersect(low).Node()
		require.NoError(t, err)

		nary, ok := n.(NAry)
		require.True(t, ok)
		assert.Equal(t, OpIntersect, nary.Op)
		assert.Len(t, nary.Inputs, 2)
	})

	t.Run("union", func(t *testing.T) {
		n, err := high.Union(low, high.Invert()).Node()
		require.NoError(t, err)

		nary, ok := n.(NAry)
		require.True(t, ok)
		assert.Equal(t, OpUnion, nary.Op)
		assert.Len(t, nary.Inputs, 3)
	})

	t.Run("single set is unchanged", func(t *testing.T) {
		assert.True(t, high.Intersect().Equal(high))
		assert.True(t, high.Union().Equal(high))
	})

	t.Run("invert", func(t *testing.T) {
		n, err := high.Invert().Node()
		require.NoError(t, err)
		assert.Equal(t, Unary{Op: OpInvert, Input: mustRanges(t, high)}, n)
	})

	t.Run("errors are sticky", func(t *testing.T) {
		bad := RangesFrom(nil)
		require.ErrorIs(t, high.Intersect(bad).Err(), ErrNilNode)
		require.ErrorIs(t, bad.Invert().Err(), ErrNilNode)
		require.ErrorIs(t, w.Filter(bad).Err(), ErrNilNode)
	})
}

func mustRanges(t *testing.T, r RangeExpr) Node {
	t.Helper()

	n, err := r.Node()
	require.NoError(t, err)

	return n
}

func TestFilter(t *testing.T) {
	w, x, _, _ := quaternion()

	filtered := w.Filter(mustThreshold(t, x, 0, GreaterThan))
	n := mustNode(t, filtered)

	b, ok := n.(Binary)
	require.True(t, ok)
	assert.Equal(t, OpFilter, b.Op)
	assert.Equal(t, SeriesNumeric, TypeOf(n))

	// A filtered series is an ordinary numeric operand.
	require.NoError(t, filtered.Plus(x).Err())
}

func TestSeriesTypes_Checked(t *testing.T) {
	w, x, _, _ := quaternion()
	ranges := mustRanges(t, mustThreshold(t, x, 0, GreaterThan))
	mode := EnumDatasourceChannel("ri.datasource.1", "mode", nil)
	modeNode, err := mode.Node()
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func() (Node, error)
	}{
		{name: "ranges added to a series", build: func() (Node, error) { return NewBinary(OpPlus, mustNode(t, w), ranges) }},
		{name: "abs of ranges", build: func() (Node, error) { return NewUnary(OpAbs, ranges) }},
		{name: "invert a series", build: func() (Node, error) { return NewUnary(OpInvert, mustNode(t, w)) }},
		{name: "intersect series", build: func() (Node, error) { return NewNAry(OpIntersect, ranges, mustNode(t, w)) }},
		{name: "filter by a series", build: func() (Node, error) { return NewBinary(OpFilter, mustNode(t, w), mustNode(t, x)) }},
		{name: "filter ranges", build: func() (Node, error) { return NewBinary(OpFilter, ranges, ranges) }},
		{name: "threshold of enum", build: func() (Node, error) { return NewParametrized(OpThreshold, modeNode, Scalar(1), GreaterThan) }},
		{name: "scale enum", build: func() (Node, error) { return NewParametrized(OpScale, modeNode, Scalar(2)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.ErrorIs(t, err, ErrSeriesType)

			var typeErr *SeriesTypeError
			require.ErrorAs(t, err, &typeErr)
		})
	}

	t.Run("references are untyped", func(t *testing.T) {
		_, err := NewBinary(OpFilter, mustNode(t, w), Reference{Name: "mask"})
		require.NoError(t, err)
	})

	t.Run("wrappers keep their type", func(t *testing.T) {
		require.ErrorIs(t, From(ranges).Err(), ErrSeriesType)
		require.ErrorIs(t, From(modeNode).Err(), ErrSeriesType)
		require.ErrorIs(t, RangesFrom(mustNode(t, w)).Err(), ErrSeriesType)
		require.ErrorIs(t, EnumFrom(ranges).Err(), ErrSeriesType)
		require.NoError(t, EnumFrom(modeNode).Err())
	})
}

func TestEnumChannels(t *testing.T) {
	asset := EnumAssetChannel(testAsset, "mavlink", "flight_mode", map[string]string{"vehicle": "a"})
	run := EnumRunChannel("ri.run.1", "mavlink", "flight_mode", nil)
	ds := EnumDatasourceChannel("ri.datasource.1", "flight_mode", nil)

	for _, e := range []EnumExpr{asset, run, ds} {
		n, err := e.Node()
		require.NoError(t, err)

		leaf, ok := n.(Leaf)
		require.True(t, ok)
		assert.True(t, leaf.Enum())
		assert.Equal(t, SeriesEnum, TypeOf(n))
	}

	numeric := AssetChannel(testAsset, "mavlink", "flight_mode", map[string]string{"vehicle": "a"})
	assert.NotEqual(t, numeric.Hash(), asset.Hash())

	require.ErrorIs(t, EnumAssetChannel(testAsset, "", "flight_mode", nil).Err(), channels.ErrInvalidRef)
}

func TestEnumFilter(t *testing.T) {
	mode := EnumDatasourceChannel("ri.datasource.1", "mode", nil)
	speed := DatasourceChannel("ri.datasource.1", "speed", nil)

	filtered := mode.Filter(mustThreshold(t, speed, 1.5, GreaterThan).Invert())
	n, err := filtered.Node()
	require.NoError(t, err)
	assert.Equal(t, SeriesEnum, TypeOf(n))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "enum_filter", Marshal(n))

	decoded, err := Unmarshal(Marshal(n))
	require.NoError(t, err)
	assert.True(t, Equal(n, decoded))
	assert.Equal(t, SeriesEnum, TypeOf(decoded))
}

type enumCatalog struct{}

func (enumCatalog) Resolve(_ context.Context, ref channels.ChannelRef) (channels.ChannelRef, error) {
	return ref.WithTags(map[string]string{"vehicle": "a"}), nil
}

func TestEnumResolveKeepsType(t *testing.T) {
	mode := EnumAssetChannel(testAsset, "mavlink", "flight_mode", nil)

	resolved, err := mode.Resolve(context.Background(), enumCatalog{})
	require.NoError(t, err)

	n, err := resolved.Node()
	require.NoError(t, err)

	leaf, ok := n.(Leaf)
	require.True(t, ok)
	assert.True(t, leaf.Enum())
	assert.Equal(t, "a", leaf.Channel.Tags["vehicle"])
}

func TestTimeDifference_OptionalUnit(t *testing.T) {
	_, x, _, _ := quaternion()

	bare, err := x.TimeDifference("")
	require.NoError(t, err)
	assert.Empty(t, mustNode(t, bare).(Parametrized).Params)

	withUnit, err := x.TimeDifference(Seconds)
	require.NoError(t, err)
	assert.False(t, bare.Equal(withUnit))

	_, err = x.TimeDifference("fortnight")
	require.ErrorIs(t, err, ErrInvalidTimeUnit)

	_, err = NewParametrized(OpTimeDifference, mustNode(t, x), Seconds, Seconds)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewParametrized(OpScale, mustNode(t, x))
	require.ErrorIs(t, err, ErrInvalidParameter)

	decoded, err := Unmarshal(Marshal(mustNode(t, bare)))
	require.NoError(t, err)
	assert.True(t, Equal(mustNode(t, bare), decoded))
}

func TestParse_Ranges(t *testing.T) {
	w, x, _, _ := quaternion()
	env := map[string]NumericExpr{"w": w, "x": x}

	high := mustThreshold(t, w, 0.5, GreaterThan)
	low := mustThreshold(t, x, -1, LessThanOrEqual)

	bare, err := x.TimeDifference("")
	require.NoError(t, err)

	tests := []struct {
		src  string
		want NumericExpr
	}{
		{src: "filter(x, w > 0.5)", want: x.Filter(high)},
		{src: "filter(x, 0.5 < w)", want: x.Filter(high)},
		{src: `filter(x, threshold(w, 0.5, ">"))`, want: x.Filter(high)},
		{src: "filter(w, w > 0.5 && x <= -1)", want: w.Filter(high.Intersect(low))},
		{src: "filter(w, intersect(w > 0.5, x <= -1))", want: w.Filter(high.Intersect(low))},
		{src: "filter(w, w > 0.5 || x <= -1)", want: w.Filter(high.Union(low))},
		{src: "filter(w, !(w > 0.5))", want: w.Filter(high.Invert())},
		{src: "filter(w, invert(w > 0.5))", want: w.Filter(high.Invert())},
		{src: "time_difference(x)", want: bare},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := Parse(tt.src, env)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}

	t.Run("format uses call syntax", func(t *testing.T) {
		want := w.Filter(high.Union(low).Invert())
		assert.Contains(t, want.String(), "filter(")
		assert.Contains(t, want.String(), "invert(union(threshold(")
		assert.Contains(t, want.String(), `, 0.5, ">")`)

		src := `filter(w, invert(union(threshold(w, 0.5, ">"), threshold(x, -1, "<="))))`
		got, err := Parse(src, env)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})
}

func TestParse_RangeErrors(t *testing.T) {
	_, x, _, _ := quaternion()
	env := map[string]NumericExpr{"x": x}

	for _, src := range []string{
		"x > 1",
		"x > x",
		"filter(x, x)",
		"x + (x > 1)",
		"(x > 1) && x",
		"!x",
		`threshold(x, 1, "~")`,
		"x div 2",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src, env)
			require.ErrorIs(t, err, ErrParse)
		})
	}
}
