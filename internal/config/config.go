// Package config loads engine configuration from the environment,
// following the typed-sub-struct-plus-Load/Validate shape the rest of
// this codebase's services use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine configuration.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Browser   BrowserConfig
	AI        AIConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the Store.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis settings for locking, caching, and the event bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BrowserConfig holds Playwright driver settings.
type BrowserConfig struct {
	Headless       bool
	DefaultTimeout time.Duration
	NavTimeout     time.Duration
}

// AIConfig holds settings for the cognition/browser-AI collaborator client.
type AIConfig struct {
	Endpoint       string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	EnableMetrics bool
	MetricsPort   int
}

// Load builds configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "workflow_engine"),
			User:        getEnv("POSTGRES_USER", "workflow_engine"),
			Password:    getEnv("POSTGRES_PASSWORD", "workflow_engine"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 5),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Browser: BrowserConfig{
			Headless:       getEnvBool("BROWSER_HEADLESS", true),
			DefaultTimeout: getEnvDuration("BROWSER_DEFAULT_TIMEOUT", 30*time.Second),
			NavTimeout:     getEnvDuration("BROWSER_NAV_TIMEOUT", 30*time.Second),
		},
		AI: AIConfig{
			Endpoint:       getEnv("AI_ENDPOINT", ""),
			APIKey:         getEnv("AI_API_KEY", ""),
			RequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:     getEnvInt("AI_MAX_RETRIES", 2),
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max_conns must be >= min_conns")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai max_retries must be >= 0")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
