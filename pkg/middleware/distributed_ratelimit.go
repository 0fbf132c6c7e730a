package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultRateLimitPrefix namespaces rate limit counters in a shared redis
const DefaultRateLimitPrefix = "coopsearch:ratelimit"

// DistributedRateLimiter implements a fixed window limit in redis, so the limit
// is shared by every instance behind the load balancer.
type DistributedRateLimiter struct {
	redis  redis.UniversalClient
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient redis.UniversalClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = DefaultRateLimitPrefix
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request against key's current window. On a redis error the
// returned decision allows the request.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)
	limit := rl.config.RequestsPerWindow + rl.config.BurstSize

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
	}

	// The first hit in a window (or a counter that lost its expiry) opens a new window
	resetAfter := ttl.Val()
	if resetAfter < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}, fmt.Errorf("redis error: %w", err)
		}
		resetAfter = rl.config.WindowDuration
	}

	count := int(incr.Val())
	return Decision{
		Allowed:    count <= limit,
		Limit:      rl.config.RequestsPerWindow,
		Remaining:  max(limit-count, 0),
		ResetAfter: resetAfter,
	}, nil
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// HealthCheck verifies Redis connectivity for rate limiting
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
