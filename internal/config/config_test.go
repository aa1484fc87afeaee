package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"APP_ENV":                    "",
		"PORT":                       "",
		"REDIS_URL":                  "",
		"EXCISE_TAX_YEAR":            "",
		"VAT_RATE":                   "",
		"GLASSWARE_TRANSPORT_VOLUME": "",
		"RATE_LIMIT_BACKEND":         "",
		"RESULT_CACHE_TTL":           "",
		"OBS_ENABLE_TRACING":         "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.False(t, cfg.RedisEnabled())
	require.Equal(t, 2026, cfg.TaxYear)
	require.Equal(t, "0.21", cfg.VATRate.String())
	require.Equal(t, "0.2", cfg.GlasswareVolume.String())
	require.Equal(t, "EUR", cfg.Currency)
	require.EqualValues(t, 1<<20, cfg.MaxBodyBytes)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, config.RateLimitSliding, cfg.RateLimitBackend)
	require.Equal(t, 10*time.Minute, cfg.ResultCacheTTL)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.False(t, cfg.Obs.TracingEnabled)
	require.True(t, cfg.Obs.MetricsEnabled)
	require.Equal(t, "akcizas", cfg.Obs.MetricsNamespace)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["REDIS_URL"] = "redis://localhost:6379/2"
	env["EXCISE_TAX_YEAR"] = "2027"
	env["VAT_RATE"] = "0.09"
	env["RATE_LIMIT_BACKEND"] = "ULULE"
	env["RESULT_CACHE_TTL"] = "bogus"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, ,https://b.example"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.True(t, cfg.RedisEnabled())
	require.Equal(t, 2027, cfg.TaxYear)
	require.Equal(t, "0.09", cfg.VATRate.String())
	require.Equal(t, config.RateLimitUlule, cfg.RateLimitBackend)
	require.Equal(t, 10*time.Minute, cfg.ResultCacheTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"EXCISE_TAX_YEAR":            "next",
		"VAT_RATE":                   "1.5",
		"GLASSWARE_TRANSPORT_VOLUME": "-1",
		"RATE_LIMIT_BACKEND":         "token-bucket",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = value
			_, err := config.LoadForTests(env)
			require.Error(t, err)
			require.Contains(t, err.Error(), key)
		})
	}
}
