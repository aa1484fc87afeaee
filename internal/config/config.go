package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	TaxYear         int
	RatesFile       string
	VATRate         decimal.Decimal
	Currency        string
	GlasswareVolume decimal.Decimal

	MaxBodyBytes       int64
	RateLimitPerMinute int
	RateLimitBackend   string
	ResultCacheTTL     time.Duration
	IdempotencyTTL     time.Duration
	ShutdownTimeout    time.Duration

	Obs ObsConfig
}

// ObsConfig groups the logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	PprofEnabled     bool
	PprofUser        string
	PprofPassword    string
}

// Rate limiter backends.
const (
	RateLimitSliding = "sliding"
	RateLimitUlule   = "ulule"
)

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
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RatesFile:          strings.TrimSpace(k.String("EXCISE_RATES_FILE")),
		Currency:           strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "EUR")),
		RateLimitBackend:   strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), RateLimitSliding)),
		ResultCacheTTL:     parseDuration(k.String("RESULT_CACHE_TTL"), "10m"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "akcizas"),
			MetricsEnabled:   parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBuckets:   strings.TrimSpace(k.String("OBS_HTTP_BUCKETS_MS")),
			TracingEnabled:   parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			PprofEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("OBS_PPROF_USER")),
			PprofPassword:    strings.TrimSpace(k.String("OBS_PPROF_PASSWORD")),
		},
	}

	var err error
	if cfg.TaxYear, err = parseInt(k.String("EXCISE_TAX_YEAR"), 2026); err != nil {
		return nil, fmt.Errorf("EXCISE_TAX_YEAR: %w", err)
	}
	if cfg.VATRate, err = parseDecimal(k.String("VAT_RATE"), "0.21"); err != nil {
		return nil, fmt.Errorf("VAT_RATE: %w", err)
	}
	if cfg.VATRate.IsNegative() || cfg.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("VAT_RATE must be in [0, 1), got %s", cfg.VATRate)
	}
	if cfg.GlasswareVolume, err = parseDecimal(k.String("GLASSWARE_TRANSPORT_VOLUME"), "0.2"); err != nil {
		return nil, fmt.Errorf("GLASSWARE_TRANSPORT_VOLUME: %w", err)
	}
	if cfg.GlasswareVolume.IsNegative() {
		return nil, fmt.Errorf("GLASSWARE_TRANSPORT_VOLUME must not be negative, got %s", cfg.GlasswareVolume)
	}
	maxBody, err := parseInt(k.String("REQUEST_MAX_BODY_BYTES"), 1<<20)
	if err != nil {
		return nil, fmt.Errorf("REQUEST_MAX_BODY_BYTES: %w", err)
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.RateLimitPerMinute, err = parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if cfg.RateLimitBackend != RateLimitSliding && cfg.RateLimitBackend != RateLimitUlule {
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", RateLimitSliding, RateLimitUlule, cfg.RateLimitBackend)
	}
	ratio, err := parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0)
	if err != nil {
		return nil, fmt.Errorf("OBS_TRACING_SAMPLING_RATIO: %w", err)
	}
	cfg.Obs.SamplingRatio = ratio

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

// RedisEnabled reports whether a Redis URL was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
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
		return strings.TrimSpace(value)
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

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func parseFloat(value string, fallback float64) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	return decimal.NewFromString(value)
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
