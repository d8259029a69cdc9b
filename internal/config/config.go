// Package config provides centralized configuration management for the application.
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
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Model    ModelConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Cache    CacheConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight ingestions (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema migrations at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds archive ingestion settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted archive size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel ingestion runs (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single ingestion run (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// TempDir is where archives are staged and extracted (default: os.TempDir)
	TempDir string `env:"UPLOAD_TEMP_DIR"`

	MaxArchiveEntries int   `env:"UPLOAD_MAX_ARCHIVE_ENTRIES" default:"10000"`
	MaxExtractedBytes int64 `env:"UPLOAD_MAX_EXTRACTED_BYTES" default:"1073741824"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey guards the upload endpoint with the X-API-Key header
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`

	// CORSOrigins lists the frontend origins allowed to call the API
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ModelConfig locates the scoring model artifact.
type ModelConfig struct {
	Path string `env:"MODEL_PATH" default:"models/esg_model.json"`

	// Preload loads the model at startup instead of on the first prediction
	Preload bool `env:"MODEL_PRELOAD" default:"false"`
}

// KafkaConfig configures ingestion-completed events. Empty Brokers disables them.
type KafkaConfig struct {
	Brokers  []string `env:"KAFKA_BROKERS"`
	Topic    string   `env:"KAFKA_TOPIC" default:"esg.ingestions"`
	ClientID string   `env:"KAFKA_CLIENT_ID" default:"esg-ingest"`
}

// Enabled reports whether events should be published.
func (c *KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// StorageConfig configures S3 retention of uploaded archives. Empty Bucket disables it.
type StorageConfig struct {
	Bucket string `env:"S3_BUCKET"`
	Prefix string `env:"S3_PREFIX" default:"uploads/"`
	Region string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
}

func (c *StorageConfig) Enabled() bool { return c.Bucket != "" }

// CacheConfig configures the Redis read cache. Empty URL disables it.
type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"CACHE_TTL" default:"5m"`
}

func (c *CacheConfig) Enabled() bool { return c.RedisURL != "" }

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
