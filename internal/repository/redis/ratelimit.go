package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Attempts are members of a sorted set scored by time in ms. A refused
// attempt is removed again so callers hammering the endpoint do not push
// their own retry time further out.
//
// KEYS[1] = key
// ARGV    = now_ms, window_ms, limit, member
// returns {allowed, retry_ms}
const luaAdmitAttempt = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
if redis.call('ZCARD', KEYS[1]) < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, 0}
end

local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local retry = window - (now - tonumber(oldest[2]))
if retry < 1 then retry = 1 end
return {0, retry}
`

// SlidingWindowLimiter caps booking attempts per key within a rolling window.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	scope string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaAdmitAttempt),
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, id string) (bool, time.Duration, error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	res, err := l.script.Run(ctx, l.rdb,
		[]string{KeyRateLimit(l.scope, id)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
