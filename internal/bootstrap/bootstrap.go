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
	"github.com/weavegraph/core/internal/locking"
	"github.com/weavegraph/core/internal/logger"
	"github.com/weavegraph/core/internal/observability"
	"github.com/weavegraph/core/internal/ratelimit"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/schema"
	"github.com/weavegraph/core/internal/store"
)

// Setup initializes every engine component in dependency order,
// registering a cleanup func after each one that needs to release a
// resource. This is the engine's entry point, the counterpart to the
// teacher's bootstrap.Setup.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Components{cleanupFuncs: make([]func() error, 0)}

	// 1. Configuration.
	var err error
	if options.customConfig != nil {
		c.Config = options.customConfig
	} else {
		c.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	// 2. Logger.
	if options.customLogger != nil {
		c.Logger = options.customLogger
	} else {
		c.Logger = logger.New(c.Config.Service.LogLevel, c.Config.Service.LogFormat)
	}
	c.Logger.Info("initializing engine", "service", serviceName, "environment", c.Config.Service.Environment)

	// 3. Store (Postgres by default, in-memory for dev/tests).
	if options.useMemoryStore {
		c.Logger.Info("using in-memory store")
		c.Store = store.NewMemory()
	} else {
		c.Logger.Info("connecting to database")
		c.DB, err = db.New(ctx, c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		c.addCleanup(func() error {
			c.DB.Close()
			return nil
		})
		c.Store = store.NewPostgres(c.DB.Pool)
	}

	// 4. Redis (locking, event bus); skippable for single-instance dev.
	if !options.skipRedis {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		c.addCleanup(c.Redis.Close)

		if pg, ok := c.Store.(*store.Postgres); ok {
			pg.WithCache(store.NewGlobalCache(c.Redis, c.Logger, 0))
		}
	}

	// 5. Template resolver, schema validator, condition evaluator.
	c.Resolver = resolver.New(c.Store)
	c.Validator = schema.New()
	c.Evaluator = condition.New()

	// 6. AI collaborator: HTTP client wrapped in the retry/circuit-breaker client.
	if options.customAI != nil {
		c.AI = options.customAI
	} else {
		httpGen := ai.NewHTTPGenerator(c.Config.AI.Endpoint, c.Config.AI.APIKey, c.Config.AI.RequestTimeout)
		c.AI = ai.NewRetryingClient(httpGen, serviceName+"-ai", c.Config.AI.MaxRetries)
	}

	// 7. Locking manager (Redis SETNX half is nil-safe when Redis is skipped).
	c.Locking = locking.NewManager(c.Redis, 0)
	c.RateLimit = ratelimit.New(c.Redis)

	// 8. Observability: event bus, metrics, plan tracker.
	c.Bus = observability.NewBus(c.Redis, c.Logger)
	if c.Redis != nil {
		go c.Bus.Listen(context.Background())
	}
	c.Metrics = observability.NewMetrics()
	c.Plans = observability.NewPlanTracker(c.Store, c.Bus)

	// 9. Browser session manager (lazy per-workflow Playwright driver).
	c.Browsers = browser.NewManager(c.Config.Browser.Headless, c.Store, c.Bus, c.AI)
	c.addCleanup(func() error {
		return c.Browsers.CloseAll(context.Background())
	})

	c.Logger.Info("engine initialization complete",
		"store", storeKind(options.useMemoryStore),
		"redis", c.Redis != nil,
	)
	return c, nil
}

// MustSetup panics on Setup failure, for main() entry points that
// cannot meaningfully recover from misconfiguration.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	c, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to bootstrap %s: %v", serviceName, err))
	}
	return c
}

func storeKind(memory bool) string {
	if memory {
		return "memory"
	}
	return "postgres"
}
