// Package observability implements the engine's event bus, plan/
// description versioning wrapper, and Prometheus metrics. The event bus
// is grounded on cmd/fanout's Hub + RedisSubscriber split in the
// teacher: a local registry of subscriber channels fed by a background
// goroutine that PSubscribes to a Redis pattern and fans each message
// out to the matching workflow's local subscribers. The teacher bridges
// to WebSocket connections keyed by username; this bridges to SSE
// streams keyed by workflow ID.
package observability

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weavegraph/core/internal/logger"
)

const channelPrefix = "weavegraph:events:"

// Event is one message on a workflow's event stream: browser_state,
// plan_updated, or node_executed, per spec.md §6.
type Event struct {
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id"`
	Payload    any    `json:"payload"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Bus publishes workflow events to Redis and fans incoming events out to
// local SSE subscribers. Delivery to subscribers is best-effort and at
// most once: Redis pub/sub does not redeliver, and fanOut drops an event
// for a subscriber whose buffer is full.
type Bus struct {
	rdb *redis.Client
	log *logger.Logger

	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

// NewBus creates an event Bus. Call Listen in a background goroutine to
// start forwarding Redis pub/sub traffic to local subscribers.
func NewBus(rdb *redis.Client, log *logger.Logger) *Bus {
	return &Bus{rdb: rdb, log: log, subscribers: make(map[string][]chan Event)}
}

// Publish implements browser.EventPublisher: it publishes to Redis so
// every engine instance subscribed to this workflow (including this
// one, via Listen) observes the event.
func (b *Bus) Publish(ctx context.Context, workflowID, eventType string, payload any) error {
	evt := Event{Type: eventType, WorkflowID: workflowID, Payload: payload, EmittedAt: time.Now()}
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+workflowID, raw).Err()
}

// Subscribe registers a local channel for workflowID's events. The
// returned unsubscribe function must be called when the SSE connection
// closes. The channel is buffered; a slow consumer drops events rather
// than blocking the publisher, matching the teacher's "buffer full,
// close connection" policy but degraded to dropping the incoming event
// (the connection stays open) since SSE reconnect semantics tolerate
// gaps better than a dropped connection.
func (b *Bus) Subscribe(workflowID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[workflowID] = append(b.subscribers[workflowID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[workflowID]
		for i, c := range subs {
			if c == ch {
				b.subscribers[workflowID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(b.subscribers[workflowID]) == 0 {
			delete(b.subscribers, workflowID)
		}
	}
	return ch, unsubscribe
}

// Listen subscribes to the Redis pattern covering every workflow's
// channel and fans each message out to that workflow's local
// subscribers. Blocks until ctx is cancelled.
func (b *Bus) Listen(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		b.log.ErrorContext(ctx, "event bus subscribe failed", "error", err)
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			workflowID := strings.TrimPrefix(msg.Channel, channelPrefix)
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.ErrorContext(ctx, "malformed event payload", "error", err)
				continue
			}
			b.fanOut(workflowID, evt)
		}
	}
}

func (b *Bus) fanOut(workflowID string, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[workflowID] {
		select {
		case ch <- evt:
		default:
			// Subscriber too slow; drop this event rather than block
			// the fan-out loop for every other workflow's subscribers.
		}
	}
}
