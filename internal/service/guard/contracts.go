package guard

import (
	"context"
	"time"

	"truck-dispatch/internal/domain"
)

type locker interface {
	WithLock(ctx context.Context, resource string, ttl, wait time.Duration, fn func(context.Context) error) error
}

type markerStore interface {
	ActiveBroadcast(ctx context.Context, customerID string) (string, bool, error)
	SetActiveBroadcast(ctx context.Context, customerID, broadcastID string, ttl time.Duration) error
	ClearActiveBroadcast(ctx context.Context, customerID, broadcastID string) (bool, error)
}

type broadcastReader interface {
	Get(ctx context.Context, id string) (*domain.Broadcast, error)
	ActiveForCustomer(ctx context.Context, customerID string) (*domain.Broadcast, error)
}
