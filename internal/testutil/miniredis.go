package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/seriesgraph/pkg/redis"
)

// NewMiniredis creates an in-memory Redis for unit tests (no Docker needed).
// The server is automatically closed when the test completes.
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewRedisConfig starts a miniredis and returns a redis config pointing at it.
func NewRedisConfig(t *testing.T, prefix string) (*miniredis.Miniredis, *redis.Config) {
	t.Helper()

	mr := NewMiniredis(t)

	cfg := &redis.Config{Address: "redis://" + mr.Addr() + "/0", Prefix: prefix}
	require.NoError(t, cfg.Validate())

	return mr, cfg
}

// NewAsynqRedis starts a miniredis and returns asynq connection options for it, built the
// same way the CLI builds them from config.
func NewAsynqRedis(t *testing.T, prefix string) (*miniredis.Miniredis, *redis.Config, *asynq.RedisClientOpt) {
	t.Helper()

	mr, cfg := NewRedisConfig(t, prefix)

	opt, err := cfg.Options()
	require.NoError(t, err)

	return mr, cfg, redis.NewAsynqRedisOptions(opt)
}
