package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisutil "github.com/tipjar/slack-tip-server/internal/redis"
)

// slidingWindowScript keeps one sorted-set member per admitted request, scored
// by its arrival in milliseconds. It returns {allowed, remaining, resetAtMs}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local nowMs = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', nowMs - windowMs)

local used = redis.call('ZCARD', key)
if used >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAtMs = nowMs + windowMs
    if #oldest == 2 then
        resetAtMs = tonumber(oldest[2]) + windowMs
    end
    return {0, 0, resetAtMs}
end

redis.call('ZADD', key, nowMs, ARGV[4])
redis.call('PEXPIRE', key, windowMs + 1000)

return {1, limit - used - 1, nowMs + windowMs}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a Redis sliding-window limiter. It fails open: the endpoints
// it guards serve public, cacheable content.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()

	reply, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{redisutil.RateLimitKey(key)},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return admitted(now, limit, window)
	}
	if len(reply) != 3 {
		log.Warn().Ints64("reply", reply).Str("key", key).Msg("unexpected rate limit reply, allowing request")
		return admitted(now, limit, window)
	}

	return RateLimitResult{
		Allowed:   reply[0] == 1,
		Remaining: int(reply[1]),
		ResetAt:   time.UnixMilli(reply[2]),
	}
}

func admitted(now time.Time, limit int, window time.Duration) RateLimitResult {
	return RateLimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}
}
