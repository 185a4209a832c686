package redis

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	cache *Cache
}

func NewRateLimiter(cache *Cache) *RateLimiter {
	return &RateLimiter{cache: cache}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.cache.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a redis outage must not take bookings down.
		return true
	}
	return incr.Val() <= int64(rate)
}
