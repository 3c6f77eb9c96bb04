package channels

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestCache(t *testing.T, next Catalog, client redis.UniversalClient) *CachedCatalog {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewCachedCatalog(logger, next, client, "seriesgraph:", time.Minute)
}

func TestCachedCatalog_ReadThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := newFakeCatalog()
	cache := newTestCache(t, next, client)
	ctx := context.Background()

	key := ScopeKey{Origin: OriginAsset, OriginID: testAsset, Scope: "mavlink"}

	first, err := cache.Scope(ctx, key)
	require.NoError(t, err)
	second, err := cache.Scope(ctx, key)
	require.NoError(t, err)

	assert.Len(t, next.calls, 1, "second lookup must be served from redis")
	assert.Equal(t, first.DefaultTags, second.DefaultTags)
	assert.Equal(t, first.Channels, second.Channels)

	assert.True(t, mr.Exists("seriesgraph:catalog:asset:"+testAsset+"/mavlink"))
	assert.Equal(t, time.Minute, mr.TTL("seriesgraph:catalog:asset:"+testAsset+"/mavlink"))
}

func TestCachedCatalog_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := newFakeCatalog()
	cache := newTestCache(t, next, client)
	ctx := context.Background()

	key := ScopeKey{Origin: OriginDatasource, OriginID: "ri.datasource.main.ds.1"}

	_, err := cache.Scope(ctx, key)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cache.Scope(ctx, key)
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}

func TestCachedCatalog_NotFoundNotCached(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := newFakeCatalog()
	cache := newTestCache(t, next, client)
	ctx := context.Background()

	key := ScopeKey{Origin: OriginAsset, OriginID: testAsset, Scope: "missing"}

	_, err := cache.Scope(ctx, key)
	require.ErrorIs(t, err, ErrScopeNotFound)
	assert.False(t, mr.Exists(cache.Key(key)))
}

func TestCachedCatalog_Invalidate(t *testing.T) {
	_, client := setupTestRedis(t)
	next := newFakeCatalog()
	cache := newTestCache(t, next, client)
	ctx := context.Background()

	key := ScopeKey{Origin: OriginAsset, OriginID: testAsset, Scope: "mavlink"}

	_, err := cache.Scope(ctx, key)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, key))

	_, err = cache.Scope(ctx, key)
	require.NoError(t, err)
	assert.Len(t, next.calls, 2)
}

func TestCachedCatalog_RedisDownFallsThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	next := newFakeCatalog()
	cache := newTestCache(t, next, client)

	mr.Close()

	scope, err := cache.Scope(context.Background(), ScopeKey{Origin: OriginAsset, OriginID: testAsset, Scope: "mavlink"})
	require.NoError(t, err)
	assert.NotEmpty(t, scope.Channels)
}

func TestCachedCatalog_WithResolver(t *testing.T) {
	_, client := setupTestRedis(t)
	next := newFakeCatalog()
	r := newTestResolver(newTestCache(t, next, client))

	for i := 0; i < 3; i++ {
		ref, err := r.AssetChannel(context.Background(), testAsset, "mavlink", "q1", map[string]string{"color": "green"})
		require.NoError(t, err)
		assert.Equal(t, "green", ref.Tags["color"])
	}

	assert.Len(t, next.calls, 1)
}
