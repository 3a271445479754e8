//go:generate mockgen -source=contracts.go -destination=fanout_mocks_test.go -package=fanout_test

package fanout

import (
	"context"

	"truck-dispatch/internal/domain"
)

// Bus delivers an event to every instance subscribed to a room.
type Bus interface {
	Publish(ctx context.Context, room string, e domain.Event) error
}

// Sink receives every published event once, e.g. the Kafka lifecycle stream.
type Sink interface {
	Emit(ctx context.Context, e domain.Event) error
}
