package timer

import (
	"context"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/lease"
)

type index interface {
	Add(ctx context.Context, broadcastID string, due time.Time) error
	AddIfAbsent(ctx context.Context, broadcastID string, due time.Time) (bool, error)
	Remove(ctx context.Context, broadcastID string) (bool, error)
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	DueAt(ctx context.Context, broadcastID string) (time.Time, bool, error)
}

type locker interface {
	TryAcquire(ctx context.Context, resource string, ttl time.Duration) (*lease.Lease, error)
	Release(ctx context.Context, ls *lease.Lease) (bool, error)
}

// Expirer drives a broadcast to EXPIRED; it reports false when the broadcast was already
// terminal or unknown.
type Expirer interface {
	Expire(ctx context.Context, broadcastID string) (bool, error)
}

type overdueLister interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error)
}
