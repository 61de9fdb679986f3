// Package config loads schemafix settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Schema   SchemaConfig
	Assist   AssistConfig
	Cache    CacheConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout covers the whole pass including assistant calls (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"90s"`
}

// DatabaseConfig holds the optional Postgres connection used by the
// postgres schema store.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Schema store kinds.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// SchemaConfig selects where the canonical schema lives.
type SchemaConfig struct {
	// Path is the JSON or YAML definition file (default: schema/truth.json)
	Path string `env:"SCHEMA_PATH" default:"schema/truth.json"`

	// Store is "file" or "postgres" (default: file)
	Store string `env:"SCHEMA_STORE" default:"file"`

	// SeedDefaults writes the bundled order schema when none exists (default: false)
	SeedDefaults bool `env:"SCHEMA_SEED_DEFAULTS" default:"false"`
}

// AssistConfig configures the chat-completions assistant.
type AssistConfig struct {
	// Enabled turns the assistant on when an API key is present (default: true)
	Enabled bool `env:"ASSIST_ENABLED" default:"true"`

	// APIKey authenticates against the provider
	APIKey string `env:"OPENAI_API_KEY" envAlt:"ASSIST_API_KEY"`

	// BaseURL is the OpenAI-compatible endpoint (default: https://api.openai.com/v1)
	BaseURL string `env:"ASSIST_BASE_URL" default:"https://api.openai.com/v1"`

	// Model is the chat model name (default: gpt-4.1)
	Model string `env:"OPENAI_MODEL" envAlt:"ASSIST_MODEL" default:"gpt-4.1"`

	// Timeout bounds each call (default: 10s)
	Timeout time.Duration `env:"ASSIST_TIMEOUT" default:"10s"`

	// MaxRetries is the number of retries after the first attempt (default: 2)
	MaxRetries int `env:"ASSIST_MAX_RETRIES" default:"2"`

	// RetryDelay is the fixed pause between attempts (default: 700ms)
	RetryDelay time.Duration `env:"ASSIST_RETRY_DELAY" default:"700ms"`
}

// Active reports whether the assistant can be used.
func (c *AssistConfig) Active() bool {
	return c.Enabled && c.APIKey != ""
}

// CacheConfig configures the Redis cache for cell repairs.
type CacheConfig struct {
	// RedisAddr enables Redis when set, e.g. localhost:6379
	RedisAddr string `env:"REDIS_ADDR"`

	// RedisPassword is the optional Redis password
	RedisPassword string `env:"REDIS_PASSWORD"`

	// RedisDB selects the Redis database (default: 0)
	RedisDB int `env:"REDIS_DB" default:"0"`

	// Prefix namespaces cache keys (default: schemafix:)
	Prefix string `env:"CACHE_PREFIX" default:"schemafix:"`

	// TTL is how long repairs are cached (default: 24h)
	TTL time.Duration `env:"CACHE_TTL" default:"24h"`
}

// UploadConfig holds file upload and pass settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel passes (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a pass slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single pass (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for reconcile and export (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key auth on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
