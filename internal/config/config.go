// Package config provides centralized configuration management for notesd.
// It loads configuration from a .env file, environment variables and CLI flag
// overrides (in increasing precedence), validates it, and provides sensible defaults.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kuitang/tagnotes/internal/cache"
	"github.com/kuitang/tagnotes/internal/db"
	"github.com/kuitang/tagnotes/internal/export"
	"github.com/kuitang/tagnotes/internal/ratelimit"
)

const (
	defaultListenAddr      = ":3000"
	defaultS3Region        = "auto"
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Database
	DatabaseDriver db.Dialect
	DatabasePath   string // sqlite file
	DatabaseKey    string // optional SQLCipher key, 64 hex characters
	DatabaseURL    string // mysql DSN
	MaxOpenConns   int
	MaxIdleConns   int

	// Cache (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Rate limiting
	RateLimitEnabled bool
	RateLimitConfig  ratelimit.Config

	// Export storage (uses AWS_ env vars)
	ExportBucket       string
	ExportPrefix       string
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Overrides are CLI flag values. Empty fields leave the environment value in place.
type Overrides struct {
	ListenAddr     string
	DatabaseDriver string
	DatabasePath   string
	LogLevel       string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables and applies ov.
// It does not validate; call Validate.
func LoadConfig(ov Overrides) *Config {
	cfg := &Config{}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)

	// Database
	cfg.DatabaseDriver = db.Dialect(strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", string(db.DialectSQLite))))
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", db.DefaultPath)
	cfg.DatabaseKey = strings.TrimSpace(os.Getenv("DATABASE_KEY"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MaxOpenConns = parseIntOrDefault("DB_MAX_OPEN_CONNS", db.MaxOpenConns)
	cfg.MaxIdleConns = parseIntOrDefault("DB_MAX_IDLE_CONNS", db.MaxIdleConns)

	// Cache
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = parseIntOrDefault("REDIS_DB", 0)
	cfg.CacheTTL = parseDurationOrDefault("CACHE_TTL", cache.DefaultTTL)

	// Rate limiting
	cfg.RateLimitEnabled = parseBoolOrDefault("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// Export storage
	cfg.ExportBucket = strings.TrimSpace(os.Getenv("EXPORT_BUCKET"))
	cfg.ExportPrefix = getEnvOrDefault("EXPORT_PREFIX", export.DefaultPrefix)
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	// CLI flag values win
	if ov.ListenAddr != "" {
		cfg.ListenAddr = ov.ListenAddr
	}
	if ov.DatabaseDriver != "" {
		cfg.DatabaseDriver = db.Dialect(strings.ToLower(ov.DatabaseDriver))
	}
	if ov.DatabasePath != "" {
		cfg.DatabasePath = ov.DatabasePath
	}
	if ov.LogLevel != "" {
		cfg.LogLevel = ov.LogLevel
	}

	return cfg
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q must be one of debug, info, warn, error", c.LogLevel))
	}

	switch c.DatabaseDriver {
	case db.DialectSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, "DATABASE_PATH is required for the sqlite driver")
		}
		if c.DatabaseKey != "" {
			if _, err := hex.DecodeString(c.DatabaseKey); err != nil || len(c.DatabaseKey) != 64 {
				errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
			}
		}
	case db.DialectMySQL:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the mysql driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DATABASE_DRIVER %q must be sqlite or mysql", c.DatabaseDriver))
	}
	if c.MaxOpenConns <= 0 {
		errs = append(errs, "DB_MAX_OPEN_CONNS must be positive")
	}
	if c.MaxIdleConns < 0 {
		errs = append(errs, "DB_MAX_IDLE_CONNS must not be negative")
	}

	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}

	if c.RateLimitEnabled {
		if c.RateLimitConfig.RPS <= 0 {
			errs = append(errs, "RATE_LIMIT_RPS must be positive")
		}
		if c.RateLimitConfig.Burst <= 0 {
			errs = append(errs, "RATE_LIMIT_BURST must be positive")
		}
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidateExport checks the settings the export command needs on top of Validate.
func (c *Config) ValidateExport() error {
	var errs []string
	if c.ExportBucket == "" {
		errs = append(errs, "EXPORT_BUCKET is required for export")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// DBOptions converts the database settings into db.Options.
func (c *Config) DBOptions() db.Options {
	return db.Options{
		Driver:       c.DatabaseDriver,
		Path:         c.DatabasePath,
		Key:          c.DatabaseKey,
		DSN:          c.DatabaseURL,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
	}
}

// CacheConfig converts the Redis settings into cache.Config.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TTL:      c.CacheTTL,
	}
}

// PrintStartupSummary prints a human-readable summary of the configuration.
// Secrets are never printed.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notesd starting...")

	switch c.DatabaseDriver {
	case db.DialectMySQL:
		fmt.Fprintln(w, "  Database: mysql (DATABASE_URL)")
	default:
		enc := "plaintext"
		if c.DatabaseKey != "" {
			enc = "encrypted"
		}
		fmt.Fprintf(w, "  Database: sqlite %s (%s)\n", c.DatabasePath, enc)
	}

	if c.RedisAddr == "" {
		fmt.Fprintln(w, "  Cache:    disabled")
	} else {
		fmt.Fprintf(w, "  Cache:    redis %s (ttl %s)\n", c.RedisAddr, c.CacheTTL)
	}

	if c.RateLimitEnabled {
		fmt.Fprintf(w, "  Limits:   %g rps, burst %d per client\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	} else {
		fmt.Fprintln(w, "  Limits:   disabled")
	}

	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
