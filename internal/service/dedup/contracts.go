package dedup

import (
	"context"
	"time"

	"truck-dispatch/internal/domain"
)

type idempotencyStore interface {
	ClaimIdempotency(ctx context.Context, fingerprint, candidateID string, ttl time.Duration) (string, bool, error)
	ReplaceIdempotency(ctx context.Context, fingerprint, stale, broadcastID string, ttl time.Duration) (bool, error)
	ClearIdempotency(ctx context.Context, fingerprint, broadcastID string) (bool, error)
}

type broadcastReader interface {
	Get(ctx context.Context, id string) (*domain.Broadcast, error)
}
