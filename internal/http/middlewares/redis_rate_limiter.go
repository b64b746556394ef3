package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter shares fixed-window counters between API instances.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "orderhub:ratelimit"
	}
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := rl.prefix + ":" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("redis rate limit: %w", err)
	}

	remaining := ttl.Val()

	// first hit of the window, or a key that lost its expiry
	if remaining < 0 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis rate limit expire: %w", err)
		}
		remaining = rl.window
	}

	if incr.Val() > int64(rl.limit) {
		return false, remaining, nil
	}
	return true, 0, nil
}
