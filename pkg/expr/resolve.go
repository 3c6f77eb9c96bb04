package expr

import (
	"context"

	"github.com/ethpandaops/seriesgraph/pkg/channels"
)

// ChannelResolver is the part of channels.Resolver that trees need.
type ChannelResolver interface {
	Resolve(ctx context.Context, ref channels.ChannelRef) (channels.ChannelRef, error)
}

// ResolveChannels replaces every channel leaf in n with its catalog-resolved ref, applying
// scope default tags. Each distinct channel is looked up once. The first failure is returned
// and n is left untouched.
func ResolveChannels(ctx context.Context, r ChannelResolver, n Node) (Node, error) {
	resolved := map[string]channels.ChannelRef{}

	for _, ref := range Channels(n) {
		out, err := r.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		resolved[ref.String()] = out
	}

	return Rewrite(n, func(node Node) (Node, bool) {
		leaf, ok := node.(Leaf)
		if !ok {
			return nil, false
		}

		return leaf.WithChannel(resolved[leaf.Channel.String()]), true
	}), nil
}

// Resolve is ResolveChannels for a NumericExpr.
func (e NumericExpr) Resolve(ctx context.Context, r ChannelResolver) (NumericExpr, error) {
	n, err := e.Node()
	if err != nil {
		return NumericExpr{err: err}, err
	}

	out, err := ResolveChannels(ctx, r, n)
	if err != nil {
		return NumericExpr{err: err}, err
	}

	return NumericExpr{node: out}, nil
}
