package handlers

import (
	"context"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/transport/pubsub"
)

type broadcastUsecase interface {
	Create(ctx context.Context, req domain.CreateRequest) (domain.CreateResult, error)
	Get(ctx context.Context, id string) (domain.BroadcastView, error)
	ListForTransporter(ctx context.Context, transporterID string, limit int) ([]domain.Broadcast, error)
	Close(ctx context.Context, id, customerID string) (domain.Broadcast, error)
}

type acceptUsecase interface {
	Accept(ctx context.Context, req domain.AcceptRequest) (domain.AcceptResult, error)
}

type cancelUsecase interface {
	Cancel(ctx context.Context, broadcastID, customerID string) (domain.CancelResult, error)
}

type eventSubscriber interface {
	Subscribe(ctx context.Context, rooms ...string) (*pubsub.Subscription, error)
}
