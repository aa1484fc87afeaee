package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/health"
)

type stubChecker struct {
	redisErr error
}

func (s stubChecker) PingRedis(context.Context, time.Duration) error {
	return s.redisErr
}

func readyStatus(t *testing.T, handler health.Handler) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		handler health.Handler
		code    int
		status  string
		redis   string
	}{
		{"redis not configured", health.Handler{TaxYear: 2026}, http.StatusOK, "ok", "disabled"},
		{"redis reachable", health.Handler{Checker: stubChecker{}, RedisTimeout: 50 * time.Millisecond}, http.StatusOK, "ok", "ok"},
		{"redis down", health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}}, http.StatusServiceUnavailable, "degraded", "redis down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, status := readyStatus(t, tc.handler)
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.status, status["status"])
			require.Equal(t, tc.redis, status["redis"])
		})
	}

	_, status := readyStatus(t, health.Handler{TaxYear: 2026})
	require.Equal(t, float64(2026), status["tax_year"])
}

func TestReadyWhileDraining(t *testing.T) {
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })
	require.False(t, health.IsReady())

	code, status := readyStatus(t, health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", status["status"])
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := health.RedisChecker{Client: client}
	require.NoError(t, checker.PingRedis(context.Background(), time.Second))
	mr.Close()
	require.Error(t, checker.PingRedis(context.Background(), 100*time.Millisecond))
}
