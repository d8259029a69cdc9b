package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves one environment variable. os.LookupEnv satisfies it.
type Lookup func(name string) (string, bool)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source, such as a map in tests.
func LoadFrom(lookup Lookup) (*Config, error) {
	cfg := &Config{}

	l := loader{lookup: lookup}
	l.fill(reflect.ValueOf(cfg).Elem())
	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loader walks the tagged fields of a config struct. Every bad variable is
// reported, not just the first.
type loader struct {
	lookup Lookup
	errs   []error
}

func (l *loader) fill(v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			l.fill(fv)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		raw, ok := l.resolve(name, field.Tag.Get("envAlt"), field.Tag.Get("default"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				l.errs = append(l.errs, fmt.Errorf("required environment variable %s is not set", name))
			}
			continue
		}
		if err := setField(fv, raw); err != nil {
			l.errs = append(l.errs, fmt.Errorf("invalid value for %s=%q: %w", name, raw, err))
		}
	}
}

// resolve tries the primary name, the alternate, then the default. Empty
// values count as unset.
func (l *loader) resolve(name, alt, def string) (string, bool) {
	for _, key := range []string{name, alt} {
		if key == "" {
			continue
		}
		if v, _ := l.lookup(key); v != "" {
			return v, true
		}
	}
	return def, def != ""
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	problems = append(problems, c.Database.problems()...)
	problems = append(problems, c.Server.problems()...)
	problems = append(problems, c.Upload.problems()...)
	problems = append(problems, c.Rate.problems()...)
	problems = append(problems, c.Security.problems()...)
	problems = append(problems, c.integrationProblems()...)
	problems = append(problems, c.Logging.problems()...)

	if len(problems) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func (d DatabaseConfig) problems() []string {
	var p []string
	if d.URL == "" {
		p = append(p, "DATABASE_URL is required")
	}
	if d.MaxConns <= 0 {
		p = append(p, "DB_MAX_CONNS must be positive")
	}
	if d.MinConns < 0 {
		p = append(p, "DB_MIN_CONNS must be non-negative")
	}
	if d.MaxConns < d.MinConns {
		p = append(p, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns))
	}
	return p
}

func (s ServerConfig) problems() []string {
	var p []string
	if s.Port <= 0 || s.Port > 65535 {
		p = append(p, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", s.Port))
	}
	if s.ReadTimeout < 0 {
		p = append(p, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if s.ShutdownTimeout <= 0 {
		p = append(p, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return p
}

func (u UploadConfig) problems() []string {
	positive := []struct {
		name string
		ok   bool
	}{
		{"UPLOAD_MAX_FILE_SIZE", u.MaxFileSize > 0},
		{"UPLOAD_MAX_CONCURRENT", u.MaxConcurrent > 0},
		{"UPLOAD_MAX_WAIT_TIME", u.MaxWaitTime > 0},
		{"UPLOAD_TIMEOUT", u.Timeout > 0},
		{"UPLOAD_MAX_ARCHIVE_ENTRIES", u.MaxArchiveEntries > 0},
		{"UPLOAD_MAX_EXTRACTED_BYTES", u.MaxExtractedBytes > 0},
	}
	var p []string
	for _, f := range positive {
		if !f.ok {
			p = append(p, f.name+" must be positive")
		}
	}
	return p
}

func (r RateLimitConfig) problems() []string {
	if !r.Enabled {
		return nil
	}
	var p []string
	if r.RequestsPerMinute <= 0 {
		p = append(p, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if r.UploadLimit <= 0 {
		p = append(p, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}
	return p
}

func (s SecurityConfig) problems() []string {
	if s.RequireAPIKey && len(s.APIKeys) == 0 {
		return []string{"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth"}
	}
	return nil
}

func (c *Config) integrationProblems() []string {
	var p []string
	if c.Model.Path == "" {
		p = append(p, "MODEL_PATH must not be empty")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		p = append(p, "KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Storage.Enabled() && c.Storage.Region == "" {
		p = append(p, "S3_REGION is required when S3_BUCKET is set")
	}
	if c.Cache.Enabled() && c.Cache.TTL <= 0 {
		p = append(p, "CACHE_TTL must be positive when REDIS_URL is set")
	}
	return p
}

func (l LoggingConfig) problems() []string {
	var p []string
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p = append(p, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p = append(p, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", l.Format))
	}
	return p
}

// String renders the config for logging with secrets masked.
func (c *Config) String() string {
	sections := []string{
		fmt.Sprintf("Server: {Addr: %q}", c.Server.Addr()),
		fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, AutoMigrate: %v}",
			c.Database.MaxConns, c.Database.MinConns, c.Database.AutoMigrate),
		fmt.Sprintf("Upload: {MaxFileSize: %d, MaxConcurrent: %d, MaxArchiveEntries: %d, MaxExtractedBytes: %d}",
			c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.MaxArchiveEntries, c.Upload.MaxExtractedBytes),
		fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}", c.Rate.Enabled, c.Rate.RequestsPerMinute),
		fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}", c.Security.RequireAPIKey, len(c.Security.APIKeys)),
		fmt.Sprintf("Model: {Path: %q}", c.Model.Path),
		fmt.Sprintf("Kafka: {Enabled: %v, Topic: %q}", c.Kafka.Enabled(), c.Kafka.Topic),
		fmt.Sprintf("Storage: {Bucket: %q}", c.Storage.Bucket),
		fmt.Sprintf("Cache: {Enabled: %v}", c.Cache.Enabled()),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}
