package acceptance

import (
	"context"

	"truck-dispatch/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, e domain.Event, rooms ...string)
}

type cleaner interface {
	Terminal(ctx context.Context, b domain.Broadcast) []string
}

type audience interface {
	Notified(ctx context.Context, broadcastID string) ([]string, error)
}

type outcomes interface {
	Observe(operation, outcome string)
}
