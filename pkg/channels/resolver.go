package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolver turns channel identifiers into canonical refs using a Catalog.
type Resolver struct {
	catalog Catalog
	policy  MergePolicy
	log     logrus.FieldLogger
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithMergePolicy sets the tag collision policy. The default is MergeOverride.
func WithMergePolicy(p MergePolicy) ResolverOption {
	return func(r *Resolver) {
		r.policy = p
	}
}

// NewResolver creates a resolver over catalog.
func NewResolver(log logrus.FieldLogger, catalog Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: catalog,
		policy:  MergeOverride,
		log:     log.WithField("component", "channel-resolver"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// AssetChannel resolves a channel in an asset's data scope. The scope's default tag filter is
// merged with additionalTags.
func (r *Resolver) AssetChannel(ctx context.Context, assetRID, scope, name string, additionalTags map[string]string) (ChannelRef, error) {
	return r.Resolve(ctx, AssetChannel(assetRID, scope, name, additionalTags))
}

// RunChannel resolves a channel in a run's data scope.
func (r *Resolver) RunChannel(ctx context.Context, runRID, scope, name string, additionalTags map[string]string) (ChannelRef, error) {
	return r.Resolve(ctx, RunChannel(runRID, scope, name, additionalTags))
}

// DatasourceChannel resolves a datasource channel. Only tags are applied.
func (r *Resolver) DatasourceChannel(ctx context.Context, datasourceRID, name string, tags map[string]string) (ChannelRef, error) {
	return r.Resolve(ctx, DatasourceChannel(datasourceRID, name, tags))
}

// Channel builds a ref from an already resolved entry without a catalog round trip.
func (r *Resolver) Channel(resolved Resolved, tags map[string]string) (ChannelRef, error) {
	return FromResolved(resolved, tags, r.policy)
}

// Lookup returns the catalog entry for the channel named by ref.
func (r *Resolver) Lookup(ctx context.Context, ref ChannelRef) (Resolved, error) {
	if err := ref.Validate(); err != nil {
		return Resolved{}, err
	}

	if ref.Parametrized() {
		return Resolved{}, fmt.Errorf("%w: channel %q is bound to parameter %q", ErrInvalidRef, ref.Name, ref.OriginParam)
	}

	key := ScopeKey{Origin: ref.Origin, OriginID: ref.OriginID, Scope: ref.Scope}

	scope, err := r.catalog.Scope(ctx, key)
	if err != nil {
		if errors.Is(err, ErrScopeNotFound) {
			return Resolved{}, &NotFoundError{Ref: ref, Err: err}
		}

		return Resolved{}, fmt.Errorf("catalog lookup for %s: %w", key, err)
	}

	ch, ok := scope.Lookup(ref.Name)
	if !ok {
		return Resolved{}, &NotFoundError{Ref: ref, Suggestions: caseInsensitiveMatches(scope, ref.Name)}
	}

	return Resolved{
		Origin:      ref.Origin,
		OriginID:    ref.OriginID,
		Scope:       ref.Scope,
		Channel:     ch,
		DefaultTags: scope.DefaultTags,
	}, nil
}

// Resolve validates ref against the catalog and applies scope default tags. Tags already on
// ref are treated as explicit.
func (r *Resolver) Resolve(ctx context.Context, ref ChannelRef) (ChannelRef, error) {
	resolved, err := r.Lookup(ctx, ref)
	if err != nil {
		return ChannelRef{}, err
	}

	out, err := FromResolved(resolved, ref.Tags, r.policy)
	if err != nil {
		return ChannelRef{}, err
	}

	r.log.WithFields(logrus.Fields{
		"channel": out.String(),
	}).Debug("Resolved channel")

	return out, nil
}

func caseInsensitiveMatches(scope *Scope, name string) []string {
	var out []string

	for _, ch := range scope.Channels {
		if ch.Name != name && strings.EqualFold(ch.Name, name) {
			out = append(out, ch.Name)
		}
	}

	return out
}
