package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window Limiter shared by every instance that uses
// the same Redis.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisLimiter(rdb redis.Cmdable, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix}
}

// Allow increments the counter for key. The window starts with the first hit
// and is never extended by later ones.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, length time.Duration) (Decision, error) {
	k := l.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	resetIn := ttl.Val()
	if resetIn < 0 {
		// No expiry yet: this hit opened the window, or a previous expire failed.
		if err := l.rdb.PExpire(ctx, k, length).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: set window: %w", key, err)
		}
		resetIn = length
	}
	return decide(int(incr.Val()), limit, resetIn), nil
}
