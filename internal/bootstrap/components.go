// Package bootstrap wires every engine collaborator into one Components
// value, the way the teacher's common/bootstrap package assembles a
// service's Config/Logger/DB/Queue/Cache/Telemetry. The engine has no
// queue or cache in the teacher's sense, so those slots are replaced by
// the engine's own long-lived collaborators: Store, the template
// Resolver, the schema Validator, the condition Evaluator, the AI
// TextGenerator, the locking Manager, the event Bus, Metrics, the
// PlanTracker, and the per-workflow browser session Manager.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/browser"
	"github.com/weavegraph/core/internal/condition"
	"github.com/weavegraph/core/internal/config"
	"github.com/weavegraph/core/internal/db"
	"github.com/weavegraph/core/internal/executor"
	"github.com/weavegraph/core/internal/locking"
	"github.com/weavegraph/core/internal/logger"
	"github.com/weavegraph/core/internal/observability"
	"github.com/weavegraph/core/internal/ratelimit"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/schema"
	"github.com/weavegraph/core/internal/store"
)

// Components holds every initialized engine dependency.
type Components struct {
	Config *config.Config
	Logger *logger.Logger

	DB    *db.DB // nil when running against the in-memory Store
	Store store.Backend
	Redis *redis.Client // nil when Redis is skipped

	Resolver  *resolver.Resolver
	Validator *schema.Validator
	Evaluator *condition.Evaluator
	AI        ai.TextGenerator

	Locking   *locking.Manager
	Bus       *observability.Bus
	Metrics   *observability.Metrics
	Plans     *observability.PlanTracker
	Browsers  *browser.Manager
	RateLimit *ratelimit.Limiter

	cleanupFuncs []func() error
}

// ExecutorFor builds an Executor for workflowID, acquiring (or reusing)
// that workflow's browser Session from Browsers. The rest of an
// Executor's collaborators are shared across every workflow.
func (c *Components) ExecutorFor(ctx context.Context, workflowID string) (*executor.Executor, error) {
	sess, err := c.Browsers.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("acquire browser session: %w", err)
	}
	return executor.New(c.Store, c.Resolver, c.Validator, c.Evaluator, sess, c.AI, c.Metrics, c.Logger), nil
}

// Shutdown runs every registered cleanup function in LIFO order, the
// same ordering the teacher's Components.Shutdown uses.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks the liveness of every component that can fail
// independently of the process itself.
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
