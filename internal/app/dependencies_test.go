package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/app"
	"github.com/noah-isme/akcizas/internal/config"
	"github.com/noah-isme/akcizas/internal/ratelimit"
)

func testConfig() *config.Config {
	return &config.Config{
		TaxYear:          2026,
		VATRate:          decimal.RequireFromString("0.21"),
		Currency:         "EUR",
		GlasswareVolume:  decimal.RequireFromString("0.2"),
		RateLimitBackend: config.RateLimitSliding,
		ResultCacheTTL:   time.Minute,
	}
}

func TestNewWithoutRedis(t *testing.T) {
	deps, err := app.New(context.Background(), testConfig(), zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	require.Nil(t, deps.Redis)
	require.IsType(t, ratelimit.Ulule{}, deps.Limiter)
	require.NotNil(t, deps.LimiterStore)
	require.Equal(t, 2026, deps.Engine.Table().Year)
	require.Equal(t, "2026:0.21:0.2", deps.Engine.Fingerprint())
	require.NotNil(t, deps.Tracer("test"))
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	deps, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	require.NotNil(t, deps.Redis)
	require.IsType(t, ratelimit.SlidingWindow{}, deps.Limiter)

	cfg.RateLimitBackend = config.RateLimitUlule
	ulule, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ulule.Close() })
	require.IsType(t, ratelimit.Ulule{}, ulule.Limiter)

	allowed, _, _, err := ulule.Limiter.Allow(context.Background(), "client", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	mr.Close()

	_, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.Error(t, err)
}

func TestLoadRatesOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2027.yaml")
	doc := `year: 2027
currency: EUR
thresholds:
  wine_high_abv: 8.5
  intermediate_high_abv: 15
rates:
  spirits: {basis: pure_alcohol_hl, rate: 3300}
  intermediate_high: {basis: product_hl, rate: 430}
  intermediate_low: {basis: product_hl, rate: 380}
  wine_high: {basis: product_hl, rate: 310}
  wine_low: {basis: product_hl, rate: 155}
  beer: {basis: abv_percent_hl, rate: 13.4}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg := testConfig()
	cfg.RatesFile = path
	cfg.TaxYear = 2027
	registry, table, err := app.LoadRates(cfg)
	require.NoError(t, err)
	require.Equal(t, 2027, table.Year)
	require.Contains(t, registry.Years(), 2026)
	require.Contains(t, registry.Years(), 2027)

	cfg.Currency = "USD"
	_, _, err = app.LoadRates(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.TaxYear = 1999
	_, _, err = app.LoadRates(cfg)
	require.Error(t, err)
}
