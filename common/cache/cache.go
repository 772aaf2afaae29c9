// Package cache declares the key-value cache seam internal/store.GlobalCache
// implements. Adapted from the teacher's common/cache/cache.go, which paired
// this interface with an in-process MemoryCache for single-instance
// deployments; this engine's cache always sits in front of a shared Postgres
// store that multiple engine instances can read, so a process-local cache
// would go stale across instances and isn't carried forward.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value store with TTL-based expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
