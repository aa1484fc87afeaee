package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/obs"
)

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "debug")
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recalculate/all", nil)
	req.Header.Set("Idempotency-Key", "k-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, float64(http.StatusBadRequest), entry["status"])
	require.Equal(t, "k-1", entry["idempotency_key"])
	require.Equal(t, "/api/v1/recalculate/all", entry["route"])
}

func TestRequestLoggerScopesHandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "debug")
	handler := middleware.RequestID(obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/excise/rates", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))
	require.Equal(t, "inside", inner["message"])
	require.NotEmpty(t, inner["request_id"])
	require.Equal(t, inner["request_id"], access["request_id"])
	require.Equal(t, float64(http.StatusOK), access["status"])
	require.Equal(t, "info", access["level"])
}

func TestDomainMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("akcizas", registry)

	obs.ObserveRecalc("all", "ok", 3, 0.4)
	obs.CountIssue("malformed_numeric")
	obs.CountClassified("wine_high")
	obs.CountCache(true)

	require.Equal(t, float64(1), testutil.ToFloat64(obs.RecalcTotal.WithLabelValues("all", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.RecalcIssues.WithLabelValues("malformed_numeric")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.ClassifiedItems.WithLabelValues("wine_high")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.ResultCacheTotal.WithLabelValues("hit")))
}
