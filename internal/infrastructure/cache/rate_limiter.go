package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// slidingWindow trims expired entries, then admits the request only when
// fewer than limit entries remain. Scores are microseconds.
//
// KEYS[1] window key; ARGV: now, window start, limit, member, ttl (ms)
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, count}
end

redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, count + 1}
`)

// redisRateLimiter evaluates the window atomically on the server, so
// concurrent API instances never admit more than limit requests.
type redisRateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger) RateLimiter {
	return &redisRateLimiter{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (r *redisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now().UnixMicro()
	score := strconv.FormatInt(now, 10)
	args := []interface{}{
		score,
		strconv.FormatInt(now-window.Microseconds(), 10),
		limit,
		score + "-" + uuid.NewString(),
		(window + rateLimitGrace).Milliseconds(),
	}

	res, err := slidingWindow.Run(ctx, r.client, []string{RateLimitPrefix + key}, args...).Int64Slice()
	if err != nil {
		r.logger.Error("rate limit script failed",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	if res[0] == 0 {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("current_count", res[1]),
			zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

func (r *redisRateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	from := r.now().Add(-window).UnixMicro()

	count, err := r.client.ZCount(ctx, RateLimitPrefix+key, "("+strconv.FormatInt(from, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit count failed: %w", err)
	}
	return max(limit-int(count), 0), nil
}

func (r *redisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, RateLimitPrefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset failed: %w", err)
	}
	return nil
}
