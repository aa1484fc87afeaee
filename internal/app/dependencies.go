package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/akcizas/internal/config"
	"github.com/noah-isme/akcizas/internal/excise"
	"github.com/noah-isme/akcizas/internal/ratelimit"
	"github.com/noah-isme/akcizas/internal/recalc"
	"github.com/noah-isme/akcizas/internal/resilience"
)

// Dependencies enumerates the services shared by the HTTP server and the CLI.
type Dependencies struct {
	Redis          *redis.Client
	Validator      *validator.Validate
	Registry       *excise.Registry
	Engine         *recalc.Engine
	Cache          *recalc.Cache
	Limiter        ratelimit.Limiter
	LimiterStore   limiter.Store
	TracerProvider trace.TracerProvider
}

// Options tune how dependencies are built.
type Options struct {
	// InstrumentRedisMetrics enables redisotel metrics on the Redis client.
	InstrumentRedisMetrics bool
	// RedisConnectAttempts is how many times the initial ping is tried.
	RedisConnectAttempts int
}

// New builds the dependencies described by cfg. Redis is optional; without it
// the result cache and idempotency are disabled and rate limiting is kept in
// process memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	registry, table, err := LoadRates(cfg)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{
		Validator:      recalc.NewValidator(),
		Registry:       registry,
		TracerProvider: otel.GetTracerProvider(),
		Engine: recalc.NewEngine(table, recalc.Options{
			VATRate:         cfg.VATRate,
			GlasswareVolume: cfg.GlasswareVolume,
			Logger:          logger,
		}),
	}

	if cfg.RedisEnabled() {
		var rdb *redis.Client
		err := resilience.Retry(ctx, opts.RedisConnectAttempts, 250*time.Millisecond, func(ctx context.Context) error {
			var err error
			rdb, err = NewRedis(ctx, cfg.RedisURL, opts.InstrumentRedisMetrics, logger)
			if err != nil {
				logger.Warn().Err(err).Msg("connect redis")
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		deps.Redis = rdb
	}
	deps.Cache = recalc.NewCache(deps.Redis, cfg.ResultCacheTTL, "recalc:").
		WithBreaker(resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("result_cache").WithLogger(logger))

	deps.Limiter, deps.LimiterStore, err = NewLimiter(cfg.RateLimitBackend, deps.Redis)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

// LoadRates returns the rate registry, including the optional override file,
// and the table for the configured tax year.
func LoadRates(cfg *config.Config) (*excise.Registry, *excise.RateTable, error) {
	registry, err := excise.BuiltinRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("load builtin rates: %w", err)
	}
	if cfg.RatesFile != "" {
		table, err := excise.LoadRateTableFile(cfg.RatesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", cfg.RatesFile, err)
		}
		registry.Add(table)
	}
	table, err := registry.ForYear(cfg.TaxYear)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Currency != "" && table.Currency != cfg.Currency {
		return nil, nil, fmt.Errorf("rate table %d is in %s, configured currency is %s", table.Year, table.Currency, cfg.Currency)
	}
	return registry, table, nil
}

// NewRedis connects to Redis, instruments the client with OpenTelemetry and
// verifies the connection.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiter picks the rate limiter backend. Without Redis the ulule memory
// store is used regardless of backend.
func NewLimiter(backend string, rdb *redis.Client) (ratelimit.Limiter, limiter.Store, error) {
	if rdb == nil {
		store := memory.NewStore()
		return ratelimit.Ulule{Store: store}, store, nil
	}
	switch backend {
	case config.RateLimitUlule:
		store, err := NewLimiterStore(rdb)
		if err != nil {
			return nil, nil, fmt.Errorf("ratelimit store: %w", err)
		}
		return ratelimit.Ulule{Store: store}, store, nil
	case config.RateLimitSliding, "":
		return ratelimit.SlidingWindow{Client: rdb, Prefix: "ratelimit:"}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown rate limit backend %q", backend)
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit_ulule"})
}

// Close releases the Redis connection if one was opened.
func (d *Dependencies) Close() error {
	if d == nil || d.Redis == nil {
		return nil
	}
	if err := d.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// Tracer returns the OpenTelemetry tracer for instrumentation hooks.
func (d *Dependencies) Tracer(name string) trace.Tracer {
	if d == nil || d.TracerProvider == nil {
		return otel.Tracer(name)
	}
	return d.TracerProvider.Tracer(name)
}
