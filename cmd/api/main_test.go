package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/app"
	"github.com/noah-isme/akcizas/internal/config"
	"github.com/noah-isme/akcizas/internal/obs"
)

const allBody = `{"products": [
	{"name": "Absolut Vodka", "abv": "40", "volume": "0,7", "quantity": 6, "unit_price": "11.90"},
	{"name": "Founders Porter", "abv": "6.5", "volume": "0.355", "quantity": 24, "unit_price": "2.49"}
], "transport_total": "15"}`

func newTestServer(t *testing.T, withRedis bool, limit int) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		AppEnv:             "test",
		TaxYear:            2026,
		VATRate:            decimal.RequireFromString("0.21"),
		Currency:           "EUR",
		GlasswareVolume:    decimal.RequireFromString("0.2"),
		MaxBodyBytes:       1 << 16,
		RateLimitPerMinute: limit,
		RateLimitBackend:   config.RateLimitSliding,
		ResultCacheTTL:     time.Minute,
		IdempotencyTTL:     time.Minute,
	}
	if withRedis {
		mr := miniredis.RunT(t)
		cfg.RedisURL = "redis://" + mr.Addr()
	}
	deps, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(newRouter(routerConfig{
		Config:         cfg,
		Deps:           deps,
		Logger:         zerolog.Nop(),
		Metrics:        obs.NewHTTPMetrics("akcizas_test", nil, reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouterServesRecalculation(t *testing.T) {
	srv := newTestServer(t, true, 100)

	first := postJSON(t, srv.URL+"/api/v1/recalculate/all", allBody, map[string]string{"Idempotency-Key": "inv-42"})
	require.Equal(t, http.StatusOK, first.StatusCode)
	require.Equal(t, "no-store", first.Header.Get("Cache-Control"))
	require.NotEmpty(t, first.Header.Get("X-RateLimit-Remaining"))
	require.Empty(t, first.Header.Get("Idempotent-Replayed"))

	replay := postJSON(t, srv.URL+"/api/v1/recalculate/all", allBody, map[string]string{"Idempotency-Key": "inv-42"})
	require.Equal(t, http.StatusOK, replay.StatusCode)
	require.Equal(t, "true", replay.Header.Get("Idempotent-Replayed"))

	item := postJSON(t, srv.URL+"/api/v1/recalculate/item",
		`{"product_index": 0, "transport_total": 15, "all_products": [{"name": "Absolut Vodka", "abv": 40, "volume": 0.7, "quantity": 6, "unit_price": 11.9}]}`, nil)
	require.Equal(t, http.StatusOK, item.StatusCode)

	classify := postJSON(t, srv.URL+"/api/v1/excise/classify", `{"name": "Founders Porter"}`, nil)
	require.Equal(t, http.StatusOK, classify.StatusCode)

	for _, path := range []string{"/api/v1/excise/rates", "/api/v1/excise/categories", "/health/live", "/health/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouterWithoutRedis(t *testing.T) {
	srv := newTestServer(t, false, 100)

	resp := postJSON(t, srv.URL+"/api/v1/recalculate/all", allBody, map[string]string{"Idempotency-Key": "inv-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := postJSON(t, srv.URL+"/api/v1/recalculate/all", allBody, map[string]string{"Idempotency-Key": "inv-1"})
	require.Equal(t, http.StatusOK, again.StatusCode)
	require.Empty(t, again.Header.Get("Idempotent-Replayed"))

	ready, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	_ = ready.Body.Close()
	require.Equal(t, http.StatusOK, ready.StatusCode)
}

func TestRouterEnforcesLimits(t *testing.T) {
	srv := newTestServer(t, false, 2)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/excise/classify", `{"name": "Chianti"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	limited := postJSON(t, srv.URL+"/api/v1/excise/classify", `{"name": "Chianti"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	require.NotEmpty(t, limited.Header.Get("Retry-After"))

	srv = newTestServer(t, false, 100)
	huge := `{"products": [` + strings.Repeat(`{"name": "Chianti Classico", "volume": 0.75},`, 2000) + `{}]}`
	tooLarge := postJSON(t, srv.URL+"/api/v1/recalculate/all", huge, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, tooLarge.StatusCode)
}
