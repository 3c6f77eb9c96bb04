package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/seriesgraph/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultCacheTTL is used when a CachedCatalog is created with a zero TTL.
const DefaultCacheTTL = 5 * time.Minute

// cachedScope is the redis representation of a scope.
type cachedScope struct {
	Scope    Scope     `json:"scope"`
	CachedAt time.Time `json:"cached_at"`
}

// CachedCatalog is a read-through redis cache in front of another Catalog. Missing scopes are
// not cached.
type CachedCatalog struct {
	next        Catalog
	redisClient redis.UniversalClient
	keyPrefix   string
	ttl         time.Duration
	log         logrus.FieldLogger
}

// NewCachedCatalog creates a cache over next. keyPrefix namespaces the redis keys.
func NewCachedCatalog(log logrus.FieldLogger, next Catalog, redisClient redis.UniversalClient, keyPrefix string, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedCatalog{
		next:        next,
		redisClient: redisClient,
		keyPrefix:   keyPrefix + "catalog:",
		ttl:         ttl,
		log:         log.WithField("component", "catalog-cache"),
	}
}

// Key is the redis key for a scope.
func (c *CachedCatalog) Key(key ScopeKey) string {
	return c.keyPrefix + key.String()
}

// Scope implements Catalog.
func (c *CachedCatalog) Scope(ctx context.Context, key ScopeKey) (*Scope, error) {
	cached, err := c.get(ctx, key)
	if err != nil {
		// A broken cache degrades to direct lookups
		c.log.WithError(err).WithField("scope", key.String()).Warn("Catalog cache read failed")
		observability.RecordError("catalog-cache", "read")
	}

	if cached != nil {
		observability.RecordCatalogCacheHit(string(key.Origin))
		return cached, nil
	}

	observability.RecordCatalogCacheMiss(string(key.Origin))

	scope, err := c.next.Scope(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, key, scope); err != nil {
		c.log.WithError(err).WithField("scope", key.String()).Warn("Catalog cache write failed")
		observability.RecordError("catalog-cache", "write")
	}

	return scope, nil
}

// Invalidate drops a cached scope.
func (c *CachedCatalog) Invalidate(ctx context.Context, key ScopeKey) error {
	return c.redisClient.Del(ctx, c.Key(key)).Err()
}

func (c *CachedCatalog) get(ctx context.Context, key ScopeKey) (*Scope, error) {
	data, err := c.redisClient.Get(ctx, c.Key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	var entry cachedScope
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry: %w", err)
	}

	return &entry.Scope, nil
}

func (c *CachedCatalog) set(ctx context.Context, key ScopeKey, scope *Scope) error {
	data, err := json.Marshal(cachedScope{Scope: *scope, CachedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, c.Key(key), data, c.ttl).Err()
}
