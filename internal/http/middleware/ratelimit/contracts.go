package ratelimit

import "context"

// Limiter is a rate limiter
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
