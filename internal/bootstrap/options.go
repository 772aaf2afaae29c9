package bootstrap

import (
	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/config"
	"github.com/weavegraph/core/internal/logger"
)

// Option configures Setup, mirroring the teacher's functional-options
// bootstrap shape (common/bootstrap/options.go).
type Option func(*options)

type options struct {
	useMemoryStore bool
	skipRedis      bool
	customConfig   *config.Config
	customLogger   *logger.Logger
	customAI       ai.TextGenerator
}

func defaultOptions() *options {
	return &options{}
}

// WithMemoryStore uses the in-memory Store instead of Postgres, for
// local development and tests.
func WithMemoryStore() Option {
	return func(o *options) { o.useMemoryStore = true }
}

// WithoutRedis skips the Redis client, locking Manager, and event Bus
// fall back to process-local-only behavior.
func WithoutRedis() Option {
	return func(o *options) { o.skipRedis = true }
}

// WithCustomConfig injects configuration instead of loading it from the
// environment.
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

// WithCustomLogger injects a logger instead of constructing one from
// config.
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// WithCustomAI injects a TextGenerator instead of constructing the
// HTTP-backed one, for tests and local stubs.
func WithCustomAI(gen ai.TextGenerator) Option {
	return func(o *options) { o.customAI = gen }
}
