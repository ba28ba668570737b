package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements domain.RateLimiter with a fixed window counter per
// key. The first hit in a window sets its expiry.
type RateLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), now: time.Now}
}

func rateLimitKey(key string, window time.Duration, at time.Time) string {
	bucket := at.UnixMilli() / window.Milliseconds()
	return fmt.Sprintf("%sratelimit:%s:%d", keyPrefix, key, bucket)
}

// Allow counts one hit for key and reports whether it stays within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window < time.Millisecond {
		return true, nil
	}
	k := rateLimitKey(key, window, rl.now())

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
