package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weavegraph/core/common/cache"
	redisclient "github.com/weavegraph/core/common/redis"
	"github.com/weavegraph/core/internal/logger"
)

// GlobalCache is a read-through cache for hot global keys, keeping
// getGlobal cheap when an iterate loop re-reads the same handful of keys
// every pass. Grounded on the teacher's cache.Cache interface
// (common/cache/cache.go), backed by its Redis client wrapper
// (common/redis/client.go) in place of the teacher's in-process
// MemoryCache: a read-through cache in front of Postgres needs to be
// shared across engine instances, which an in-process map cannot do.
type GlobalCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

var _ cache.Cache = (*GlobalCache)(nil)

// NewGlobalCache wraps rdb as the store's global-value cache.
func NewGlobalCache(rdb *redis.Client, log *logger.Logger, ttl time.Duration) *GlobalCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &GlobalCache{client: redisclient.NewClient(rdb, log), ttl: ttl}
}

func globalCacheKey(workflowID, key string) string {
	return fmt.Sprintf("weavegraph:global:%s:%s", workflowID, key)
}

// Get returns a cache miss (not an error) whenever the underlying Redis
// call fails, including key-not-found: a cache miss only costs a
// Postgres read, so it is never worth surfacing to the caller.
func (c *GlobalCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, false, nil
	}
	return []byte(val), true, nil
}

func (c *GlobalCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.SetWithExpiry(ctx, key, string(value), ttl)
}

func (c *GlobalCache) Delete(ctx context.Context, key string) error {
	return c.client.GetUnderlying().Del(ctx, key).Err()
}

// Close is a no-op: the underlying redis.Client's lifecycle is owned by
// bootstrap.Components, not by the cache wrapper.
func (c *GlobalCache) Close() error { return nil }
