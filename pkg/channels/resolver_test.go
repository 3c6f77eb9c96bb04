package channels

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCatalogDown = errors.New("catalog down")

// fakeCatalog is an in-memory Catalog that records lookups.
type fakeCatalog struct {
	mu     sync.Mutex
	scopes map[ScopeKey]*Scope
	err    error
	calls  []ScopeKey
}

func (f *fakeCatalog) Scope(_ context.Context, key ScopeKey) (*Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, key)

	if f.err != nil {
		return nil, f.err
	}

	s, ok := f.scopes[key]
	if !ok {
		return nil, ErrScopeNotFound
	}

	return s, nil
}

const testAsset = "ri.asset.main.asset.1"

func newFakeCatalog() *fakeCatalog {
	mavlink := ScopeKey{Origin: OriginAsset, OriginID: testAsset, Scope: "mavlink"}
	run := ScopeKey{Origin: OriginRun, OriginID: "ri.run.main.run.7", Scope: "mavlink"}
	ds := ScopeKey{Origin: OriginDatasource, OriginID: "ri.datasource.main.ds.1"}

	quaternion := []Channel{
		{Name: "attitude_quaternion.q1", DataType: "double"},
		{Name: "attitude_quaternion.q2", DataType: "double"},
		{Name: "q1", DataType: "double"},
	}

	return &fakeCatalog{scopes: map[ScopeKey]*Scope{
		mavlink: {Key: mavlink, DefaultTags: map[string]string{"vehicle": "v1", "color": "red"}, Channels: quaternion},
		run:     {Key: run, DefaultTags: map[string]string{"vehicle": "v1"}, Channels: quaternion},
		ds:      {Key: ds, DefaultTags: map[string]string{"ignored": "yes"}, Channels: []Channel{{Name: "temperature"}}},
	}}
}

func newTestResolver(catalog Catalog, opts ...ResolverOption) *Resolver {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewResolver(logger, catalog, opts...)
}

func TestResolver_AssetChannelTagMerge(t *testing.T) {
	r := newTestResolver(newFakeCatalog())

	ref, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", map[string]string{"color": "green"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"vehicle": "v1", "color": "green"}, ref.Tags)
	assert.Equal(t, OriginAsset, ref.Origin)
	assert.Equal(t, "mavlink", ref.Scope)

	again, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", map[string]string{"color": "green"})
	require.NoError(t, err)
	assert.True(t, ref.Equal(again))
}

func TestResolver_DefaultsOnly(t *testing.T) {
	r := newTestResolver(newFakeCatalog())

	ref, err := r.RunChannel(context.Background(), "ri.run.main.run.7", "mavlink", "attitude_quaternion.q2", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"vehicle": "v1"}, ref.Tags)
}

func TestResolver_DatasourceHasNoScopeDefaults(t *testing.T) {
	r := newTestResolver(newFakeCatalog())

	ref, err := r.DatasourceChannel(context.Background(), "ri.datasource.main.ds.1", "temperature", map[string]string{"sensor": "a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sensor": "a"}, ref.Tags)
	assert.Empty(t, ref.Scope)
}

func TestResolver_StrictPolicy(t *testing.T) {
	r := newTestResolver(newFakeCatalog(), WithMergePolicy(MergeStrict))

	_, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", map[string]string{"color": "green"})
	require.ErrorIs(t, err, ErrTagConflict)

	var conflict *TagConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "color", conflict.Key)
	assert.Equal(t, "red", conflict.Default)
	assert.Equal(t, "green", conflict.Explicit)

	// agreeing values are not a conflict
	ref, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", map[string]string{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, "red", ref.Tags["color"])
}

func TestResolver_NotFound(t *testing.T) {
	tests := []struct {
		name        string
		scope       string
		channel     string
		suggestions []string
	}{
		{name: "wrong case", scope: "mavlink", channel: "Q1", suggestions: []string{"q1"}},
		{name: "prefix only", scope: "mavlink", channel: "attitude_quaternion", suggestions: nil},
		{name: "missing scope", scope: "can", channel: "q1", suggestions: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(newFakeCatalog())

			_, err := r.AssetChannel(context.Background(), testAsset, tt.scope, tt.channel, nil)
			require.ErrorIs(t, err, ErrChannelNotFound)

			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.channel, nf.Ref.Name)
			assert.Equal(t, tt.suggestions, nf.Suggestions)
			assert.Contains(t, err.Error(), tt.channel)
		})
	}
}

func TestResolver_CatalogFailure(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.err = errCatalogDown

	r := newTestResolver(catalog)

	_, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", nil)
	require.ErrorIs(t, err, errCatalogDown)
	assert.NotErrorIs(t, err, ErrChannelNotFound)
}

func TestResolver_InvalidRefs(t *testing.T) {
	r := newTestResolver(newFakeCatalog())

	_, err := r.AssetChannel(context.Background(), testAsset, "", "q1", nil)
	require.ErrorIs(t, err, ErrInvalidRef)

	_, err = r.Resolve(context.Background(), ChannelRef{Origin: "satellite", OriginID: "x", Name: "q1"})
	require.ErrorIs(t, err, ErrInvalidOrigin)

	placeholder := ChannelRef{Origin: OriginAsset, OriginParam: "asset", Scope: "mavlink", Name: "q1"}
	_, err = r.Resolve(context.Background(), placeholder)
	require.ErrorIs(t, err, ErrInvalidRef)
}

func TestResolver_Channel(t *testing.T) {
	catalog := newFakeCatalog()
	r := newTestResolver(catalog)

	resolved, err := r.Lookup(context.Background(), AssetChannel(testAsset, "mavlink", "q1", nil))
	require.NoError(t, err)
	assert.Equal(t, "double", resolved.Channel.DataType)

	calls := len(catalog.calls)

	ref, err := r.Channel(resolved, map[string]string{"color": "blue"})
	require.NoError(t, err)
	assert.Equal(t, "blue", ref.Tags["color"])
	assert.Len(t, catalog.calls, calls, "resolved channels must not hit the catalog")
}

func TestMergeTags(t *testing.T) {
	merged, err := MergeTags("c", nil, nil, MergeOverride)
	require.NoError(t, err)
	assert.Nil(t, merged)

	defaults := map[string]string{"a": "1"}
	merged, err = MergeTags("c", defaults, map[string]string{"a": "2", "b": "3"}, MergeOverride)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "3"}, merged)
	assert.Equal(t, "1", defaults["a"], "inputs must not be mutated")
}
