// Package config provides centralized configuration management for the gateway.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Connectors ConnectorsConfig
	Upstream   UpstreamConfig
	Cache      CacheConfig
	Runner     RunnerConfig
	Database   DatabaseConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, runs are bounded by their own timeout)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for service endpoints (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ConnectorsConfig says where connector documents come from.
type ConnectorsConfig struct {
	// Dir holds .yaml, .yml and .json connector documents (default: none)
	Dir string `env:"CONNECTORS_DIR"`

	// Builtin serves the connectors compiled into the binary (default: true)
	Builtin bool `env:"CONNECTORS_BUILTIN" default:"true"`
}

// UpstreamConfig holds settings for remote api calls.
type UpstreamConfig struct {
	// Timeout is the per-attempt HTTP timeout (default: 30s)
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"30s"`

	// MaxRetries is the number of retries after a transient failure (default: 2)
	MaxRetries int `env:"UPSTREAM_MAX_RETRIES" default:"2"`

	// InitialBackoff is the first retry delay, doubled per attempt (default: 200ms)
	InitialBackoff time.Duration `env:"UPSTREAM_INITIAL_BACKOFF" default:"200ms"`

	// MaxBackoff caps the retry delay (default: 5s)
	MaxBackoff time.Duration `env:"UPSTREAM_MAX_BACKOFF" default:"5s"`

	// BreakerThreshold is the request count after which a 50% failure ratio opens a server's breaker (default: 5)
	BreakerThreshold int `env:"UPSTREAM_BREAKER_THRESHOLD" default:"5"`

	// BreakerTimeout is how long an open breaker rejects calls (default: 30s)
	BreakerTimeout time.Duration `env:"UPSTREAM_BREAKER_TIMEOUT" default:"30s"`

	// MaxBodyBytes caps an upstream response body (default: 64MB)
	MaxBodyBytes int64 `env:"UPSTREAM_MAX_BODY_BYTES" default:"67108864"`

	// InsecureSkipVerify disables TLS certificate checks (default: false)
	InsecureSkipVerify bool `env:"UPSTREAM_INSECURE_SKIP_VERIFY" default:"false"`
}

// CacheConfig holds origin and response cache settings.
type CacheConfig struct {
	// OriginEnabled caches raw upstream payloads (default: true)
	OriginEnabled bool `env:"CACHE_ORIGIN_ENABLED" default:"true"`

	// ResponseEnabled caches successful connector results (default: true)
	ResponseEnabled bool `env:"CACHE_RESPONSE_ENABLED" default:"true"`

	// Backend is memory or redis (default: memory)
	Backend string `env:"CACHE_BACKEND" default:"memory"`

	// TTL is the entry lifetime (default: 5m)
	TTL time.Duration `env:"CACHE_TTL" default:"5m"`

	// MaxEntries bounds each memory cache (default: 10000)
	MaxEntries int `env:"CACHE_MAX_ENTRIES" default:"10000"`

	// RedisURL is required for the redis backend
	RedisURL string `env:"REDIS_URL"`

	// KeyPrefix namespaces redis keys (default: connectorgw:)
	KeyPrefix string `env:"CACHE_KEY_PREFIX" default:"connectorgw:"`

	// SweepInterval is how often expired memory entries are dropped (default: 1m)
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" default:"1m"`
}

// RunnerConfig holds connector run settings.
type RunnerConfig struct {
	// MaxConcurrent is the maximum number of parallel runs (default: 32)
	MaxConcurrent int `env:"RUNNER_MAX_CONCURRENT" default:"32"`

	// MaxWait is how long a run waits for a slot (default: 5s)
	MaxWait time.Duration `env:"RUNNER_MAX_WAIT" default:"5s"`

	// DefaultTimeout bounds runs of connectors that declare no timeout (default: 60s)
	DefaultTimeout time.Duration `env:"RUNNER_DEFAULT_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds settings for sql-type api calls.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; sql calls are disabled without it
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds inbound rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP for connector endpoints (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ServiceLimit is requests per minute per IP for /service endpoints (default: 20)
	ServiceLimit int `env:"RATE_LIMIT_SERVICE" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects /service endpoints with an API key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SQLEnabled reports whether sql-type api calls can be served.
func (c *DatabaseConfig) SQLEnabled() bool {
	return c.URL != ""
}
