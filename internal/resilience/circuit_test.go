package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *fakeClock) *Breaker {
	b := NewBreaker(2, 0.5, time.Minute)
	b.now = clock.now
	return b
}

func TestBreakerTransitions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))

	clock.advance(time.Minute)
	require.True(t, b.Allow(ctx), "probe after cool-off")
	require.Equal(t, HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe in flight")
	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
	require.True(t, b.Allow(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	b.Report(ctx, false)
	b.Report(ctx, false)

	clock.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(4, 0.5, time.Minute)
	for i := 0; i < 20; i++ {
		b.Report(ctx, i%4 != 0)
	}
	require.Equal(t, Closed, b.State())
}

func TestBreakerDo(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(1, 0.5, time.Minute)
	miss := errors.New("miss")

	err := b.Do(ctx, func(context.Context) error { return miss }, func(err error) bool { return !errors.Is(err, miss) })
	require.ErrorIs(t, err, miss)
	require.Equal(t, Closed, b.State())

	err = b.Do(ctx, func(context.Context) error { return errors.New("connection refused") }, nil)
	require.Error(t, err)
	require.Equal(t, Open, b.State())

	called := false
	err = b.Do(ctx, func(context.Context) error { called = true; return nil }, nil)
	require.ErrorIs(t, err, ErrOpenCircuit)
	require.False(t, called)
}

func TestNilBreakerAllowsEverything(t *testing.T) {
	var b *Breaker
	require.True(t, b.Allow(context.Background()))
	b.Report(context.Background(), false)
	require.Equal(t, Closed, b.State())
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }, nil))
}

func TestBreakerMetrics(t *testing.T) {
	MustRegisterMetrics("akcizas_test", prometheus.NewRegistry())
	ctx := context.Background()
	b := NewBreaker(1, 0.5, time.Minute).WithTarget("result_cache_metrics")
	b.Report(ctx, false)

	require.Equal(t, 1.0, testutil.ToFloat64(BreakerState.WithLabelValues("result_cache_metrics")))
	require.Equal(t, 1.0, testutil.ToFloat64(BreakerTransitions.WithLabelValues("result_cache_metrics", "closed", "open")))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, err, "down")
	require.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, 5, time.Hour, func(context.Context) error { return errors.New("down") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, Backoff(base, 1, 0))
	require.Equal(t, base*4, Backoff(base, 3, 0))

	d := Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
