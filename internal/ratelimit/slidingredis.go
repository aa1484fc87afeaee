package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims entries older than the window and records the
// event only when the client is under its budget, so rejected calls do not
// extend a lockout. Scores are microseconds and reach the script as strings
// so Lua never reformats them.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', key, ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, ARGV[5])
local first = tonumber(ARGV[1])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// SlidingWindow is a Redis sorted-set limiter. Each admitted request is one
// member scored by its arrival time.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Allow admits the event when fewer than max events were admitted for key in
// the trailing window. reset is when the oldest admitted event leaves it.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	nowMicro := now.UnixMicro()
	ttl := window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	res, err := slidingWindowScript.Run(ctx, l.Client, []string{l.Prefix + key},
		strconv.FormatInt(nowMicro, 10),
		strconv.FormatInt(nowMicro-window.Microseconds(), 10),
		max,
		fmt.Sprintf("%d:%s", nowMicro, uuid.NewString()),
		ttl,
	).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("sliding window: %w", err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("sliding window: unexpected reply %v", res)
	}

	remaining = max - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return res[0] == 1, remaining, time.UnixMicro(res[2]).Add(window), nil
}
