package broadcast

import (
	"context"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/pricing"
)

type store interface {
	Get(ctx context.Context, id string) (*domain.Broadcast, error)
	ActiveForCustomer(ctx context.Context, customerID string) (*domain.Broadcast, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Broadcast, error)
	Assignments(ctx context.Context, broadcastID string) ([]domain.Assignment, error)
}

type guard interface {
	Run(ctx context.Context, customerID string, fn func(ctx context.Context) error) error
	Active(ctx context.Context, customerID string) (*domain.Broadcast, error)
	Mark(ctx context.Context, customerID, broadcastID string)
}

type deduplicator interface {
	Claim(ctx context.Context, fingerprint, candidateID string) (*domain.Broadcast, error)
	Forget(ctx context.Context, fingerprint, broadcastID string)
}

type scheduler interface {
	Schedule(ctx context.Context, broadcastID string, dueAt time.Time) error
}

type fleet interface {
	Candidates(ctx context.Context, vehicleType, vehicleSubtype string, limit int) ([]string, error)
}

type audience interface {
	AddNotified(ctx context.Context, broadcastID string, transporterIDs []string, at time.Time, ttl time.Duration) error
	Notified(ctx context.Context, broadcastID string) ([]string, error)
	Inbox(ctx context.Context, transporterID string, limit int) ([]string, error)
	RemoveFromInbox(ctx context.Context, transporterID, broadcastID string) error
}

type publisher interface {
	Publish(ctx context.Context, e domain.Event, rooms ...string)
}

type cleaner interface {
	Terminal(ctx context.Context, b domain.Broadcast) []string
}

type outcomes interface {
	Observe(operation, outcome string)
}

// Deps groups the collaborators of the lifecycle Service.
type Deps struct {
	Runner    runner
	Store     store
	Guard     guard
	Dedup     deduplicator
	Scheduler scheduler
	Fleet     fleet
	Audience  audience
	Pricing   pricing.Estimator
	Publisher publisher
	Cleaner   cleaner
	Outcomes  outcomes
}
