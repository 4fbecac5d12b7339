package config

import (
	"errors"
	"fmt"
	"net/http"
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
	RedisURL           string
	CORSAllowedOrigins []string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite
	BodyLimitBytes     int64

	CatalogSource       string
	CatalogPath         string
	CatalogDBPath       string
	ShippingSupportPath string
	DefaultSupplier     string
	Tier2MinQty         int
	Tier3MinQty         int

	FXBaseURL      string
	FXAPIKey       string
	FXCacheTTL     time.Duration
	FXTimeout      time.Duration
	FXCookieName   string
	FXCookieMaxAge time.Duration

	CronSecret          string
	MerchizeFeedURL     string
	MerchizeAPIKey      string
	CatalogRefreshCron  string
	CatalogSyncLockTTL  time.Duration
	CatalogSyncTimeout  time.Duration
	WorkerConcurrency   int
	CatalogRefreshQueue string

	RateLimitEstimatePerMin int
	RateLimitJobsPerHour    int

	CircuitFXMinReq      int
	CircuitFXFailureRate float64
	CircuitFXOpenFor     time.Duration
	RetryBase            time.Duration
	RetryMaxAttempts     int
	RetryJitterPercent   float64
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
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		CatalogSource:       strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), "file")),
		CatalogPath:         valueOrDefault(k.String("CATALOG_PATH"), "data/catalog.json"),
		CatalogDBPath:       valueOrDefault(k.String("CATALOG_DB_PATH"), "data/catalog.db"),
		ShippingSupportPath: valueOrDefault(k.String("SHIPPING_SUPPORT_PATH"), "data/shipping_support.json"),
		DefaultSupplier:     strings.ToLower(valueOrDefault(k.String("DEFAULT_SUPPLIER"), "merchize")),
		Tier2MinQty:         parseInt(k.String("PRICING_TIER2_MIN_QTY"), 10),
		Tier3MinQty:         parseInt(k.String("PRICING_TIER3_MIN_QTY"), 50),

		FXBaseURL:      valueOrDefault(k.String("FX_BASE_URL"), "https://open.er-api.com/v6/latest/USD"),
		FXAPIKey:       k.String("FX_API_KEY"),
		FXCacheTTL:     parseDuration(k.String("FX_CACHE_TTL"), "6h"),
		FXTimeout:      parseDuration(k.String("FX_TIMEOUT"), "3s"),
		FXCookieName:   valueOrDefault(k.String("FX_COOKIE_NAME"), "fx"),
		FXCookieMaxAge: parseDuration(k.String("FX_COOKIE_MAX_AGE"), "6h"),

		CronSecret:          strings.TrimSpace(k.String("CRON_SECRET")),
		MerchizeFeedURL:     k.String("MERCHIZE_FEED_URL"),
		MerchizeAPIKey:      k.String("MERCHIZE_API_KEY"),
		CatalogRefreshCron:  valueOrDefault(k.String("CATALOG_REFRESH_CRON"), "0 3 * * *"),
		CatalogSyncLockTTL:  parseDuration(k.String("CATALOG_SYNC_LOCK_TTL"), "10m"),
		CatalogSyncTimeout:  parseDuration(k.String("CATALOG_SYNC_TIMEOUT"), "2m"),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 2),
		CatalogRefreshQueue: valueOrDefault(k.String("CATALOG_REFRESH_QUEUE"), "catalog"),

		RateLimitEstimatePerMin: parseInt(k.String("RATE_LIMIT_ESTIMATE_PER_MIN"), 60),
		RateLimitJobsPerHour:    parseInt(k.String("RATE_LIMIT_JOBS_PER_HOUR"), 12),

		CircuitFXMinReq:      parseInt(k.String("CIRCUIT_FX_MIN_REQ"), 5),
		CircuitFXFailureRate: parseFloat(k.String("CIRCUIT_FX_FAILURE_RATE"), 0.5),
		CircuitFXOpenFor:     parseDuration(k.String("CIRCUIT_FX_OPEN_FOR"), "30s"),
		RetryBase:            parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:     parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:   parseFloat(k.String("RETRY_JITTER_PERCENT"), 20) / 100,
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.CatalogSource {
	case "file", "sqlite":
	default:
		return nil, fmt.Errorf("CATALOG_SOURCE must be file or sqlite, got %q", cfg.CatalogSource)
	}
	switch cfg.DefaultSupplier {
	case "merchize", "printful":
	default:
		return nil, fmt.Errorf("DEFAULT_SUPPLIER must be merchize or printful, got %q", cfg.DefaultSupplier)
	}
	if cfg.Tier2MinQty <= 1 || cfg.Tier3MinQty <= cfg.Tier2MinQty {
		return nil, fmt.Errorf("pricing tiers must escalate: tier2=%d tier3=%d", cfg.Tier2MinQty, cfg.Tier3MinQty)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
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
