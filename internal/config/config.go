// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database connection, assembled per spec.md §6: HOST, USERNAME, PASSWORD, DB_NAME, MAX_CONNECTIONS
	DBHost         string
	DBUsername     string
	DBPassword     string `json:"-"`
	DBName         string
	DBMaxConns     int
	DBSSLMode      string
	DatabaseURLRaw string // DATABASE_URL overrides the HOST/USERNAME/... tuple when set

	// Key-value store backing the delay scheduler (C4)
	RedisURL string

	// Security
	APIKeySecret  string `json:"-"` // process-wide HMAC secret for both tenant and admin API key hashing (§4.1)
	WebhookSecret string // loaded but not read elsewhere; outbound signing uses each endpoint's own secret

	// Database pool settings
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBConnMaxIdleTime  time.Duration
	DBConnectTimeout   int // seconds, appended to Postgres DSN
	DBStatementTimeout int // milliseconds, appended to Postgres DSN

	// HTTP server timeouts
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RequestTimeout   time.Duration // checked against HTTPWriteTimeout in Validate; no handler middleware applies it

	// Webhook delivery
	WebhookPOSTTimeout time.Duration // not read by internal/delivery, which uses its own fixed 10s client timeout

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint (e.g. "localhost:4317"), empty = disabled
}

const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultDBMaxConns         = 25
	DefaultDBMaxIdleConns     = 5
	DefaultDBConnMaxLifetime  = 5 * time.Minute
	DefaultDBConnMaxIdleTime  = 3 * time.Minute
	DefaultDBConnectTimeout   = 5     // seconds
	DefaultDBStatementTimeout = 30000 // milliseconds (30s)

	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second
	DefaultHTTPIdleTimeout  = 60 * time.Second
	DefaultRequestTimeout   = 30 * time.Second

	DefaultWebhookPOSTTimeout = 10 * time.Second
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		Env:      getEnv("ENV", DefaultEnv),
		LogLevel: getEnv("LOG_LEVEL", DefaultLogLevel),

		DBHost:         getEnv("HOST", "localhost"),
		DBUsername:     getEnv("USERNAME", "postgres"),
		DBPassword:     os.Getenv("PASSWORD"),
		DBName:         getEnv("DB_NAME", "ledger"),
		DBMaxConns:     int(getEnvInt64("MAX_CONNECTIONS", int64(DefaultDBMaxConns))),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DatabaseURLRaw: os.Getenv("DATABASE_URL"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		APIKeySecret:  os.Getenv("API_KEY_SECRET"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		DBMaxIdleConns:     int(getEnvInt64("POSTGRES_MAX_IDLE_CONNS", int64(DefaultDBMaxIdleConns))),
		DBConnMaxLifetime:  getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime),
		DBConnMaxIdleTime:  getEnvDuration("POSTGRES_CONN_MAX_IDLE_TIME", DefaultDBConnMaxIdleTime),
		DBConnectTimeout:   int(getEnvInt64("POSTGRES_CONNECT_TIMEOUT", int64(DefaultDBConnectTimeout))),
		DBStatementTimeout: int(getEnvInt64("POSTGRES_STATEMENT_TIMEOUT", int64(DefaultDBStatementTimeout))),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", DefaultHTTPIdleTimeout),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),

		WebhookPOSTTimeout: getEnvDuration("WEBHOOK_POST_TIMEOUT", DefaultWebhookPOSTTimeout),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN builds a libpq connection string from the HOST/USERNAME/PASSWORD/DB_NAME
// tuple, or returns DatabaseURLRaw verbatim when set. MAX_CONNECTIONS is not
// part of the DSN; it is applied to the pool by the caller.
func (c *Config) DSN() string {
	if c.DatabaseURLRaw != "" {
		return c.DatabaseURLRaw
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d statement_timeout=%d",
		c.DBHost, c.DBUsername, c.DBPassword, c.DBName, c.DBSSLMode, c.DBConnectTimeout, c.DBStatementTimeout,
	)
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.APIKeySecret == "" {
		return fmt.Errorf("API_KEY_SECRET is required")
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.DBMaxConns < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be at least 1, got %d", c.DBMaxConns)
	}

	if c.DBStatementTimeout < 1000 {
		return fmt.Errorf("POSTGRES_STATEMENT_TIMEOUT must be at least 1000ms, got %d", c.DBStatementTimeout)
	}

	if c.HTTPWriteTimeout > 0 && c.RequestTimeout > 0 && c.HTTPWriteTimeout < c.RequestTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%v) must be >= REQUEST_TIMEOUT (%v)", c.HTTPWriteTimeout, c.RequestTimeout)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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
