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
	AutoMigrate        bool
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	PriceCacheTTL      time.Duration
	CompareDefaultTopN int
	CompareBodyLimit   int64
	RateLimitWindow    time.Duration
	RateLimitMax       int
	GlobalRateLimit    string
	IdempotencyTTL     time.Duration

	CatalogAPIURL      string
	CatalogAPIToken    string
	CatalogRefreshCity []string
	CatalogRefreshCron string
	CatalogRetention   time.Duration

	OutboundTimeout     time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitter         float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration
	LockTTL             time.Duration
	LockRetryBackoff    time.Duration
	WorkerConcurrency   int
	WorkerMetricsAddr   string

	Obs Obs
}

// Obs groups logging, metrics, tracing and profiling switches (OBS_* keys).
type Obs struct {
	LogFormat         string
	LogLevel          string
	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsBuckets    string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	OTLPInsecure      bool
	SamplingRatio     float64
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	HSTSMaxAge        int
	ReadyDBTimeout    time.Duration
	ReadyRedisTimeout time.Duration
}

// reader wraps koanf lookups with fallbacks. Malformed values fall back silently.
type reader struct{ k *koanf.Koanf }

func (r reader) str(key, fallback string) string {
	if v := strings.TrimSpace(r.k.String(key)); v != "" {
		return v
	}
	return fallback
}

func (r reader) dur(key, fallback string) time.Duration {
	if d, err := time.ParseDuration(r.str(key, fallback)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func (r reader) millis(key string, fallback int) time.Duration {
	return time.Duration(r.integer(key, fallback)) * time.Millisecond
}

func (r reader) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(r.str(key, "")); err == nil {
		return n
	}
	return fallback
}

func (r reader) decimal(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(r.str(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

func (r reader) flag(key string, fallback bool) bool {
	switch strings.ToLower(r.str(key, "")) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return fallback
}

func (r reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.k.String(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	r := reader{k: k}

	cfg := &Config{
		AppEnv:             r.str("APP_ENV", "development"),
		Port:               r.str("PORT", "8080"),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		RedisURL:           r.str("REDIS_URL", ""),
		AutoMigrate:        r.flag("DB_AUTO_MIGRATE", true),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS"),
		ShutdownTimeout:    r.millis("SHUTDOWN_TIMEOUT_MS", 15000),

		JWTSecret:   r.str("JWT_SECRET", ""),
		JWTIssuer:   r.str("JWT_ISSUER", "championcart"),
		JWTAudience: r.str("JWT_AUDIENCE", "championcart-admin"),

		PriceCacheTTL:      r.dur("PRICE_CACHE_TTL", "10m"),
		CompareDefaultTopN: max(r.integer("COMPARE_DEFAULT_TOP_N", 5), 0),
		CompareBodyLimit:   int64(r.integer("COMPARE_BODY_LIMIT", 64<<10)),
		RateLimitWindow:    r.dur("RATE_LIMIT_WINDOW", "1m"),
		RateLimitMax:       r.integer("RATE_LIMIT_MAX", 60),
		GlobalRateLimit:    r.str("GLOBAL_RATE_LIMIT", "600-M"),
		IdempotencyTTL:     r.dur("IDEMPOTENCY_TTL", "24h"),

		CatalogAPIURL:      strings.TrimRight(r.str("CATALOG_API_URL", ""), "/"),
		CatalogAPIToken:    r.str("CATALOG_API_TOKEN", ""),
		CatalogRefreshCity: r.list("CATALOG_REFRESH_CITIES"),
		CatalogRefreshCron: r.str("CATALOG_REFRESH_CRON", "@every 6h"),
		CatalogRetention:   r.dur("CATALOG_RETENTION", "168h"),

		OutboundTimeout:     r.dur("OUTBOUND_TIMEOUT", "10s"),
		RetryMaxAttempts:    r.integer("RETRY_MAX_ATTEMPTS", 3),
		RetryBase:           r.dur("RETRY_BASE", "200ms"),
		RetryJitter:         r.decimal("RETRY_JITTER", 0.2),
		CircuitMinRequests:  r.integer("CIRCUIT_MIN_REQUESTS", 5),
		CircuitFailureRatio: r.decimal("CIRCUIT_FAILURE_RATIO", 0.5),
		CircuitOpenFor:      r.dur("CIRCUIT_OPEN_FOR", "30s"),
		LockTTL:             r.dur("LOCK_TTL", "5m"),
		LockRetryBackoff:    r.dur("LOCK_RETRY_BACKOFF", "100ms"),
		WorkerConcurrency:   r.integer("WORKER_CONCURRENCY", 4),
		WorkerMetricsAddr:   r.str("WORKER_METRICS_ADDR", ":9091"),

		Obs: Obs{
			LogFormat:         r.str("OBS_LOG_FORMAT", "json"),
			LogLevel:          r.str("OBS_LOG_LEVEL", "info"),
			MetricsEnabled:    r.flag("OBS_ENABLE_PROMETHEUS", true),
			MetricsNamespace:  r.str("OBS_METRICS_NAMESPACE", "championcart"),
			MetricsBuckets:    r.str("OBS_METRICS_BUCKETS_MS", ""),
			TracingEnabled:    r.flag("OBS_ENABLE_TRACING", true),
			TracingExporter:   r.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:      r.str("OBS_OTLP_ENDPOINT", ""),
			OTLPInsecure:      r.flag("OBS_OTLP_INSECURE", false),
			SamplingRatio:     r.decimal("OBS_TRACING_SAMPLING_RATIO", 1),
			PprofEnabled:      r.flag("OBS_ENABLE_PPROF", false),
			PprofUser:         r.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPass:         r.str("SECURE_PPROF_BASIC_AUTH_PASS", ""),
			HSTSMaxAge:        r.integer("SECURE_HSTS_MAX_AGE", 31536000),
			ReadyDBTimeout:    r.millis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			ReadyRedisTimeout: r.millis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
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
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// AdminEnabled reports whether admin endpoints can authenticate callers.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != ""
}

// AllowedOrigins returns the CORS allow list, "*" when none is configured.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.CORSAllowedOrigins
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests sets env for the duration of Load and restores it afterwards.
// An empty value unsets the key.
func LoadForTests(vars map[string]string) (*Config, error) {
	saved := make(map[string]*string, len(vars))
	for key, value := range vars {
		if prev, ok := os.LookupEnv(key); ok {
			saved[key] = &prev
		} else {
			saved[key] = nil
		}
		if err := setEnv(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()

	var restoreErrs []error
	for key, prev := range saved {
		value := ""
		if prev != nil {
			value = *prev
		}
		if rerr := setEnv(key, value); rerr != nil {
			restoreErrs = append(restoreErrs, fmt.Errorf("%s: %w", key, rerr))
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, errors.Join(restoreErrs...)
}

func setEnv(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}
