// Package ai defines the one seam this engine has into the Director's
// LLM stack: a TextGenerator interface used by cognition nodes and by
// the browser facade's AI extract/act operations. Prompting strategy,
// model selection, and the chat loop all live upstream of this package
// and out of scope here.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrRefused is returned by a TextGenerator when the model produced an
// explicit structured refusal rather than a transient failure. Refusals
// skip the retry loop entirely, per the engine's AI error policy.
var ErrRefused = errors.New("model refused the request")

// TextGenerator is the abstract LLM-calling collaborator.
type TextGenerator interface {
	Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error)
}

// RetryingClient wraps a TextGenerator with a circuit breaker and a
// bounded exponential-backoff retry loop, the only place in the engine
// that needs either: cognition/browser_ai_* calls are the sole outbound
// dependency on a flaky third-party service.
type RetryingClient struct {
	inner      TextGenerator
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	baseDelay  time.Duration
}

// NewRetryingClient wraps inner with a circuit breaker named for logging
// and a bounded retry loop: one first attempt plus up to maxRetries
// retries.
func NewRetryingClient(inner TextGenerator, name string, maxRetries int) *RetryingClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &RetryingClient{
		inner:      inner,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: maxRetries,
		baseDelay:  250 * time.Millisecond,
	}
}

// Generate calls the wrapped TextGenerator, retrying transient failures
// with exponential backoff up to maxRetries times. A refusal (ErrRefused)
// is returned immediately without retry.
func (c *RetryingClient) Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.inner.Generate(ctx, instruction, inputs, schema)
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrRefused) {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("ai generate failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
