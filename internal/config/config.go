package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	LogFormat string
	LogLevel  string

	// Caching
	RuleCacheTTL    time.Duration
	ProductCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	// Catalog paging
	CatalogDefaultPage  int
	CatalogDefaultLimit int
	CatalogMaxLimit     int

	// Rules fall back to this priority when they carry none.
	DefaultRulePriority int

	// Quote endpoint rate limiting
	QuoteRateLimit  string
	RateLimitEnable bool

	// Audit pipeline
	AuditEnabled     bool
	AuditMaxRetry    int
	AuditConcurrency int

	// Observability
	OTELEnabled        bool
	OTELEndpoint       string
	MetricsNamespace   string
	HTTPMetricsBuckets string
	PprofEnabled       bool

	// HTTP server
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MaxBodyBytes      int64

	MigrationsDir string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		RuleCacheTTL:    parseDuration(k.String("RULE_CACHE_TTL"), "30s"),
		ProductCacheTTL: parseDuration(k.String("PRODUCT_CACHE_TTL"), "5m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CatalogDefaultPage:  parseInt(k.String("CATALOG_DEFAULT_PAGE"), 1),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),

		DefaultRulePriority: parseInt(k.String("DEFAULT_RULE_PRIORITY"), 100),

		QuoteRateLimit:  valueOrDefault(k.String("QUOTE_RATE_LIMIT"), "60-M"),
		RateLimitEnable: parseBoolDefault(k.String("RATE_LIMIT_ENABLE"), true),

		AuditEnabled:     parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditMaxRetry:    parseInt(k.String("AUDIT_MAX_RETRY"), 5),
		AuditConcurrency: parseInt(k.String("AUDIT_CONCURRENCY"), 4),

		OTELEnabled:        parseBool(k.String("OTEL_ENABLED")),
		OTELEndpoint:       k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "pricing"),
		HTTPMetricsBuckets: k.String("HTTP_METRICS_BUCKETS_MS"),
		PprofEnabled:       parseBool(k.String("PPROF_ENABLED")),

		ReadHeaderTimeout: parseDuration(k.String("READ_HEADER_TIMEOUT"), "5s"),
		ShutdownTimeout:   parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		MaxBodyBytes:      int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),

		MigrationsDir: valueOrDefault(k.String("MIGRATIONS_DIR"), "migrations"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return parseBool(trimmed)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
