// Package locking enforces the engine's single-flight execution rule
// from spec.md §5: at most one execute_nodes invocation may be running
// for a given workflow at a time. Grounded on the teacher's redis
// client wrapper (common/redis/client.go) for the cross-process SETNX
// half of the lock; the in-process half uses golang.org/x/sync/semaphore
// the way a single-slot mutex with a context-aware Acquire is built.
package locking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when a workflow already has an execution in flight.
var ErrBusy = fmt.Errorf("workflow busy")

// Manager grants per-workflow execution locks. It combines an
// in-process semaphore (fast path, no network round trip when the
// engine is the only writer) with a Redis SETNX lock (correct when
// multiple engine instances share a workflow), matching the teacher's
// own Client.SetNX idempotency-check pattern.
type Manager struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]*semaphore.Weighted
}

// NewManager creates a lock Manager. rdb may be nil, in which case only
// the in-process semaphore is enforced (acceptable for a single-instance
// deployment or in tests).
func NewManager(rdb *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{rdb: rdb, ttl: ttl, local: make(map[string]*semaphore.Weighted)}
}

func (m *Manager) semaphoreFor(workflowID string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.local[workflowID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.local[workflowID] = sem
	}
	return sem
}

// Lock is a held execution lock; call Release when execute_nodes returns.
type Lock struct {
	manager    *Manager
	workflowID string
	redisKey   string
	heldRedis  bool
	released   bool
}

// Acquire takes the execution lock for workflowID, failing immediately
// with ErrBusy (no blocking wait: an in-flight execution means the
// caller should surface busy right away, not queue).
func (m *Manager) Acquire(ctx context.Context, workflowID string) (*Lock, error) {
	sem := m.semaphoreFor(workflowID)
	if !sem.TryAcquire(1) {
		return nil, ErrBusy
	}

	lock := &Lock{manager: m, workflowID: workflowID}
	if m.rdb != nil {
		key := "weavegraph:exec-lock:" + workflowID
		ok, err := m.rdb.SetNX(ctx, key, "1", m.ttl).Result()
		if err != nil {
			sem.Release(1)
			return nil, fmt.Errorf("acquire redis lock: %w", err)
		}
		if !ok {
			sem.Release(1)
			return nil, ErrBusy
		}
		lock.redisKey = key
		lock.heldRedis = true
	}
	return lock, nil
}

// Release gives up the lock. Safe to call once; a second call is a no-op.
func (l *Lock) Release(ctx context.Context) {
	if l == nil || l.released {
		return
	}
	l.released = true
	if l.heldRedis {
		_ = l.manager.rdb.Del(ctx, l.redisKey).Err()
	}
	l.manager.semaphoreFor(l.workflowID).Release(1)
}
