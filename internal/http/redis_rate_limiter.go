package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisRateLimitPrefix = "teamhub:ratelimit:"

// fixedWindow counts a hit and starts the bucket's window on the first one.
// It returns the hit count and the window's remaining milliseconds.
var fixedWindow = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

// redisRateLimiter shares budgets across API replicas, so a team's
// invitation budget holds no matter which replica serves the owner.
type redisRateLimiter struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiter connects to Redis and returns a limiter shared by every
// API replica.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client redis.UniversalClient, logger *slog.Logger) *redisRateLimiter {
	return &redisRateLimiter{client: client, logger: logger, timeout: 250 * time.Millisecond}
}

// Allow fails open when Redis is unreachable.
func (rl *redisRateLimiter) Allow(ctx context.Context, bucket string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	res, err := fixedWindow.Run(ctx, rl.client, []string{redisRateLimitPrefix + bucket}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		if rl.logger != nil {
			rl.logger.Error("redis rate limiter error", "bucket", bucket, "error", err)
		}
		return rateDecision{allowed: true}
	}
	hits, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return rateDecision{allowed: hits <= limit, count: hits, windowEnd: time.Now().Add(ttl)}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}
