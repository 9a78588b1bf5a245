package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter with a sliding window held in
// a Redis sorted set. Admission and counting happen atomically inside a
// Lua script, so concurrent callers across processes see one consistent
// window. Keys are used as given; callers own their namespace (the HTTP
// middleware passes "ratelimit:api:<ip>").
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.rdb,
		script: redis.NewScript(slidingWindowLua),
	}
}

// Allow reports whether one more request under key fits within limit
// requests per window, counting the request when it is admitted. The
// script returns {allowed, count}; only the admission flag matters here.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected script result %v", key, res)
	}
	return res[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
