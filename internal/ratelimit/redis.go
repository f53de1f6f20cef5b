package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisLimiter counts against Redis INCR + EXPIRE, grounded on the teacher's
// internal/skills/redis_cache.go construction pattern (redis.UniversalClient
// built from a plain address/password/db triple).
type redisLimiter struct {
	client redis.UniversalClient
}

// NewRedisLimiter constructs a Limiter backed by a Redis instance reachable
// at addr (e.g. "localhost:6379").
func NewRedisLimiter(addr string) Limiter {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &redisLimiter{client: client}
}

func (l *redisLimiter) Check(ctx context.Context, bucket string, limitPerWindow int, window time.Duration) (bool, error) {
	windowStart := time.Now().Unix() / int64(window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", bucket, windowStart)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window+60*time.Second).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return count <= int64(limitPerWindow), nil
}
