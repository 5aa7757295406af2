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

// Cart storage backends.
const (
	StorageRedis  = "redis"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	CartStorage   string
	RedisURL      string
	CartStateDir  string
	CartSQLite    string
	CartKeyPrefix string
	CartTTL       time.Duration
	CartLockTTL   time.Duration

	CatalogFile     string
	DatabaseURL     string
	CatalogCacheTTL time.Duration

	Currency        string
	TaxRateBps      int
	ShippingFlat    float64
	Payment         PaymentConfig
	IdempotencyTTL  time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	BodyLimitBytes  int64

	AdminUser          string
	AdminHash          string
	CORSAllowedOrigins []string

	Obs ObsConfig
}

// ObsConfig holds the logging, metrics, tracing and shutdown switches of the API server.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   []float64
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
	ShutdownDrain    time.Duration
}

// PaymentConfig configures the payment gateway client.
type PaymentConfig struct {
	KeyID           string
	KeySecret       string
	WebhookSecret   string
	BaseURL         string
	Timeout         time.Duration
	MaxAttempts     int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Enabled reports whether gateway credentials are present.
func (p PaymentConfig) Enabled() bool {
	return p.KeyID != "" && p.KeySecret != ""
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:        valueOrDefault(k.String("APP_ENV"), "development"),
		Port:          valueOrDefault(k.String("PORT"), "8080"),
		CartStorage:   strings.ToLower(valueOrDefault(k.String("CART_STORAGE"), StorageRedis)),
		RedisURL:      strings.TrimSpace(k.String("REDIS_URL")),
		CartStateDir:  valueOrDefault(k.String("CART_STATE_DIR"), "./data/carts"),
		CartSQLite:    valueOrDefault(k.String("CART_SQLITE_PATH"), "./data/carts.db"),
		CartKeyPrefix: valueOrDefault(k.String("CART_KEY_PREFIX"), "cart:"),
		CartTTL:       parseDuration(k.String("CART_TTL"), "720h"),
		CartLockTTL:   parseDuration(k.String("CART_LOCK_TTL"), "5s"),

		CatalogFile:     valueOrDefault(k.String("CATALOG_FILE"), "./catalog.yaml"),
		DatabaseURL:     strings.TrimSpace(k.String("DATABASE_URL")),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		Currency:     strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "INR")),
		TaxRateBps:   parseInt(k.String("PRICING_TAX_RATE_BPS"), 0),
		ShippingFlat: parseFloat(k.String("PRICING_SHIPPING_FLAT"), 0),
		Payment: PaymentConfig{
			KeyID:           strings.TrimSpace(k.String("PAYMENT_KEY_ID")),
			KeySecret:       strings.TrimSpace(k.String("PAYMENT_KEY_SECRET")),
			WebhookSecret:   strings.TrimSpace(k.String("PAYMENT_WEBHOOK_SECRET")),
			BaseURL:         valueOrDefault(k.String("PAYMENT_BASE_URL"), "https://api.razorpay.com"),
			Timeout:         parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
			MaxAttempts:     parseInt(k.String("PAYMENT_MAX_ATTEMPTS"), 3),
			BreakerFailures: parseInt(k.String("PAYMENT_BREAKER_FAILURES"), 5),
			BreakerCooldown: parseDuration(k.String("PAYMENT_BREAKER_COOLDOWN"), "30s"),
		},
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		AdminUser:          strings.TrimSpace(k.String("ADMIN_BASIC_AUTH_USER")),
		AdminHash:          strings.TrimSpace(k.String("ADMIN_BASIC_AUTH_HASH")),
		CORSAllowedOrigins: splitAndTrim(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),

		Obs: ObsConfig{
			LogFormat:        strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
			LogLevel:         strings.ToLower(valueOrDefault(k.String("OBS_LOG_LEVEL"), "info")),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
			MetricsBuckets:   parseFloats(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), true),
			TracingExporter:  strings.ToLower(valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp")),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
			ShutdownDrain:    parseDuration(k.String("SHUTDOWN_DRAIN"), "2s"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.CartStorage {
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when CART_STORAGE=redis"))
		}
	case StorageFile, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("CART_STORAGE must be redis, file or sqlite, got %q", c.CartStorage))
	}
	if c.TaxRateBps < 0 {
		errs = append(errs, errors.New("PRICING_TAX_RATE_BPS must not be negative"))
	}
	if c.ShippingFlat < 0 {
		errs = append(errs, errors.New("PRICING_SHIPPING_FLAT must not be negative"))
	}
	if (c.Payment.KeyID == "") != (c.Payment.KeySecret == "") {
		errs = append(errs, errors.New("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET must be set together"))
	}
	if (c.AdminUser == "") != (c.AdminHash == "") {
		errs = append(errs, errors.New("ADMIN_BASIC_AUTH_USER and ADMIN_BASIC_AUTH_HASH must be set together"))
	}
	if c.Obs.PprofEnabled && c.AdminUser == "" {
		errs = append(errs, errors.New("OBS_ENABLE_PPROF requires ADMIN_BASIC_AUTH_USER and ADMIN_BASIC_AUTH_HASH"))
	}
	switch c.Obs.TracingExporter {
	case "otlp", "none":
	default:
		errs = append(errs, fmt.Errorf("OBS_TRACING_EXPORTER must be otlp or none, got %q", c.Obs.TracingExporter))
	}
	return errors.Join(errs...)
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
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

// parseFloats reads a CSV of positive numbers, skipping entries that do not parse.
func parseFloats(value string) []float64 {
	var out []float64
	for _, part := range splitAndTrim(value) {
		if v, err := strconv.ParseFloat(part, 64); err == nil && v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
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
