package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
	"github.com/ethpandaops/seriesgraph/pkg/wire"
)

func testLeaf(t *testing.T, name string) Node {
	t.Helper()

	n, err := NewLeaf(channels.AssetChannel("ri.asset.1", "mavlink", name, nil))
	require.NoError(t, err)

	return n
}

func TestNewLeaf_InvalidRef(t *testing.T) {
	_, err := NewLeaf(channels.AssetChannel("ri.asset.1", "", "q1", nil))
	require.ErrorIs(t, err, channels.ErrInvalidRef)
}

func TestNewLeaf_CopiesTags(t *testing.T) {
	tags := map[string]string{"color": "red"}
	ref := channels.AssetChannel("ri.asset.1", "mavlink", "q1", nil)
	ref.Tags = tags

	n, err := NewLeaf(ref)
	require.NoError(t, err)

	tags["color"] = "blue"
	assert.Equal(t, "red", n.(Leaf).Channel.Tags["color"])
}

func TestConstructors_ArityChecks(t *testing.T) {
	x := testLeaf(t, "x")

	tests := []struct {
		name    string
		build   func() (Node, error)
		wantErr error
	}{
		{
			name:    "unknown op",
			build:   func() (Node, error) { return NewUnary("frobnicate", x) },
			wantErr: ErrUnknownOp,
		},
		{
			name:    "binary op as unary",
			build:   func() (Node, error) { return NewUnary(OpPlus, x) },
			wantErr: ErrArity,
		},
		{
			name:    "unary op as binary",
			build:   func() (Node, error) { return NewBinary(OpAbs, x, x) },
			wantErr: ErrArity,
		},
		{
			name:    "nil operand",
			build:   func() (Node, error) { return NewBinary(OpPlus, x, nil) },
			wantErr: ErrNilNode,
		},
		{
			name:    "nary with one input",
			build:   func() (Node, error) { return NewNAry(OpSum, x) },
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "parametrized without params",
			build:   func() (Node, error) { return NewParametrized(OpScale, x) },
			wantErr: ErrInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewParametrized_ValidatesLiterals(t *testing.T) {
	x := testLeaf(t, "x")

	t.Run("unknown time unit", func(t *testing.T) {
		_, err := NewParametrized(OpDerivative, x, TimeUnit("fortnight"))
		require.ErrorIs(t, err, ErrInvalidTimeUnit)

		var unitErr *InvalidTimeUnitError
		require.ErrorAs(t, err, &unitErr)
		assert.Equal(t, OpDerivative, unitErr.Op)
		assert.Equal(t, "fortnight", unitErr.Unit)
	})

	t.Run("wrong literal kind", func(t *testing.T) {
		_, err := NewParametrized(OpDerivative, x, Scalar(1))

		var paramErr *InvalidParameterError
		require.ErrorAs(t, err, &paramErr)
		assert.Equal(t, 0, paramErr.Index)
	})

	t.Run("invalid start timestamp", func(t *testing.T) {
		_, err := NewParametrized(OpIntegral, x, Instant(wire.Timestamp{Seconds: 1, Nanos: 1_000_000_000}), Seconds)
		require.ErrorIs(t, err, ErrInvalidParameter)
		require.ErrorIs(t, err, wire.ErrInvalidTimestamp)
	})

	t.Run("non positive window", func(t *testing.T) {
		_, err := NewParametrized(OpRolling, x, Duration(0), StatMean)
		require.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("unknown stat", func(t *testing.T) {
		_, err := NewParametrized(OpRolling, x, Duration(1e9), RollingStat("median"))
		require.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("params are copied", func(t *testing.T) {
		params := []Literal{Scalar(2)}

		n, err := NewParametrized(OpScale, x, params...)
		require.NoError(t, err)

		params[0] = Scalar(3)
		assert.Equal(t, Scalar(2), n.(Parametrized).Params[0])
	})
}

func TestParseTimeUnit(t *testing.T) {
	for _, u := range []string{"ns", "us", "ms", "s", "m", "h", "d"} {
		got, err := ParseTimeUnit(u)
		require.NoError(t, err)
		assert.Equal(t, TimeUnit(u), got)
	}

	_, err := ParseTimeUnit("S")
	require.ErrorIs(t, err, ErrInvalidTimeUnit)
}

func TestOps_CoverTable(t *testing.T) {
	total := 0

	for _, a := range []Arity{ArityUnary, ArityBinary, ArityParametrized, ArityNAry} {
		ops := Ops(a)
		assert.IsNonDecreasing(t, ops)

		for _, op := range ops {
			assert.Equal(t, a, op.Arity())
		}
		total += len(ops)
	}

	assert.Len(t, opSpecs, total)
}
