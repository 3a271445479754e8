package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// WindowLimiter is a fixed-window counter shared by every instance through Redis.
type WindowLimiter struct {
	rdb    redis.UniversalClient
	clock  Clock
	limit  int64
	window time.Duration
}

// NewWindowLimiter allows limit requests per key in each window.
func NewWindowLimiter(rdb redis.UniversalClient, clock Clock, limit int, window time.Duration) *WindowLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &WindowLimiter{rdb: rdb, clock: clock, limit: int64(limit), window: window}
}

// Allow counts the request against the current window of key.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.clock.Now().UnixMilli() / l.window.Milliseconds()
	k := keyPrefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, 2*l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= l.limit, nil
}
