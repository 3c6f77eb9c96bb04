package expr

import (
	"context"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

// EnumExpr builds series of categorical string values. Like NumericExpr it is a value with
// sticky errors.
type EnumExpr struct {
	node Node
	err  error
}

// EnumFromRef reads ref as a categorical channel.
func EnumFromRef(ref channels.ChannelRef) EnumExpr {
	n, err := NewEnumLeaf(ref)
	return EnumExpr{node: n, err: err}
}

// EnumAssetChannel reads a categorical channel in an asset's data scope.
func EnumAssetChannel(assetRID, scope, name string, additionalTags map[string]string) EnumExpr {
	return EnumFromRef(channels.AssetChannel(assetRID, scope, name, additionalTags))
}

// EnumRunChannel reads a categorical channel in a run's data scope.
func EnumRunChannel(runRID, scope, name string, additionalTags map[string]string) EnumExpr {
	return EnumFromRef(channels.RunChannel(runRID, scope, name, additionalTags))
}

// EnumDatasourceChannel reads a categorical datasource channel.
func EnumDatasourceChannel(datasourceRID, name string, tags map[string]string) EnumExpr {
	return EnumFromRef(channels.DatasourceChannel(datasourceRID, name, tags))
}

// EnumFrom wraps an existing enum tree.
func EnumFrom(n Node) EnumExpr {
	if n == nil {
		return EnumExpr{err: ErrNilNode}
	}

	if got := TypeOf(n); got != "" && got != SeriesEnum {
		return EnumExpr{err: &SeriesTypeError{Want: []SeriesType{SeriesEnum}, Got: got}}
	}

	return EnumExpr{node: n}
}

// Node returns the built tree, or the first error hit while building it.
func (e EnumExpr) Node() (Node, error) {
	if e.err != nil {
		return nil, e.err
	}

	if e.node == nil {
		return nil, ErrNilNode
	}

	return e.node, nil
}

// Err returns the sticky build error, if any.
func (e EnumExpr) Err() error {
	_, err := e.Node()
	return err
}

// Equal reports structural equality of two valid enum expressions.
func (e EnumExpr) Equal(o EnumExpr) bool {
	a, errA := e.Node()
	b, errB := o.Node()

	return errA == nil && errB == nil && Equal(a, b)
}

// Hash is the content hash of the tree, empty for an invalid expression.
func (e EnumExpr) Hash() string {
	n, err := e.Node()
	if err != nil {
		return ""
	}

	return Hash(n)
}

func (e EnumExpr) String() string {
	n, err := e.Node()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}

	return Format(n)
}

// Filter keeps the points that fall inside ranges.
func (e EnumExpr) Filter(ranges RangeExpr) EnumExpr {
	left, err := e.Node()
	if err != nil {
		return EnumExpr{err: err}
	}

	right, err := ranges.Node()
	if err != nil {
		return EnumExpr{err: err}
	}

	out, err := NewBinary(OpFilter, left, right)

	return EnumExpr{node: out, err: err}
}

// Resolve is ResolveChannels for an EnumExpr.
func (e EnumExpr) Resolve(ctx context.Context, r ChannelResolver) (EnumExpr, error) {
	n, err := e.Node()
	if err != nil {
		return EnumExpr{err: err}, err
	}

	out, err := ResolveChannels(ctx, r, n)
	if err != nil {
		return EnumExpr{err: err}, err
	}

	return EnumExpr{node: out}, nil
}
