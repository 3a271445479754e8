package broadcasttx

import (
	"context"
	"errors"
	"time"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/domain"
)

var (
	// ErrCustomerActive is returned by InsertBroadcast when the customer already has a
	// non-terminal broadcast.
	ErrCustomerActive = errors.New("customer already has an active broadcast")
	// ErrVehicleAssigned is returned by InsertAssignment when the vehicle already holds a
	// live assignment on the broadcast.
	ErrVehicleAssigned = errors.New("vehicle already assigned")
)

// Repository is the transaction-scoped broadcast store. Every mutation is conditional.
type Repository interface {
	GetBroadcast(ctx context.Context, id string) (*domain.Broadcast, error)
	InsertBroadcast(ctx context.Context, b *domain.Broadcast) error
	// ApplyAccept increments trucks_filled by one iff it still equals expectFilled, a slot is
	// free and the status is accept-eligible. It reports whether a row changed.
	ApplyAccept(ctx context.Context, id string, expectFilled int, next domain.BroadcastStatus, at time.Time) (bool, error)
	// UpdateStatus moves the broadcast to `to` iff its status is in `from`.
	UpdateStatus(ctx context.Context, id string, from []domain.BroadcastStatus, to domain.BroadcastStatus, at time.Time) (bool, error)
	InsertAssignment(ctx context.Context, a *domain.Assignment) error
	ListAssignments(ctx context.Context, broadcastID string) ([]domain.Assignment, error)
	CancelLiveAssignments(ctx context.Context, broadcastID string, at time.Time) ([]domain.Assignment, error)
	InsertTransition(ctx context.Context, t domain.Transition) error
}

// Runner runs fn inside one serializable transaction.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// Retryable reports a transaction aborted by a concurrent conflicting transaction.
func Retryable(err error) bool {
	return errors.Is(err, apperr.SerializationConflict)
}
