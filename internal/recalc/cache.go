package recalc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/akcizas/internal/resilience"
)

// Cache memoises recalculation responses in Redis. Recalculation is a pure
// function of the request, so a response can be reused for an identical
// request until the rate table changes.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	breaker *resilience.Breaker
}

// NewCache constructs a cache helper. A nil client or non-positive TTL yields
// a cache that never hits.
func NewCache(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	if prefix == "" {
		prefix = "recalc:"
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// WithBreaker guards Redis calls with b. While the breaker is open lookups
// miss and writes are dropped without touching Redis.
func (c *Cache) WithBreaker(b *resilience.Breaker) *Cache {
	c.breaker = b
	return c
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	var data []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.client.Get(ctx, c.prefix+key).Bytes()
		return err
	}, isRedisFailure)
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil), errors.Is(err, resilience.ErrOpenCircuit):
		return false, nil
	default:
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
	}, isRedisFailure)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return nil
	}
	return err
}

func isRedisFailure(err error) bool {
	return !errors.Is(err, redis.Nil)
}
