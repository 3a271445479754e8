// Package fanout delivers lifecycle events to customer, transporter and driver rooms.
// Delivery is fire-and-forget: failures are logged and never fail a transition.
package fanout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

const (
	publishTimeout = 2 * time.Second
	// emitTimeout bounds the hand-off to the sink; a stalled sink drops the event.
	emitTimeout = 250 * time.Millisecond
)

// Publisher fans events out over the bus and mirrors them to the sink.
type Publisher struct {
	bus         Bus
	sink        Sink
	logger      logx.Logger
	newID       func() string
	now         func() time.Time
	emitTimeout time.Duration
}

// New creates a Publisher; sink may be nil.
func New(bus Bus, sink Sink, logger logx.Logger) *Publisher {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Publisher{
		bus:         bus,
		sink:        sink,
		logger:      logger,
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
		emitTimeout: emitTimeout,
	}
}

// Publish stamps e and sends it to each room. It detaches from ctx cancellation so an
// aborted request still notifies observers of a committed transition.
func (p *Publisher) Publish(ctx context.Context, e domain.Event, rooms ...string) {
	if len(rooms) == 0 {
		return
	}
	if e.ID == "" {
		e.ID = p.newID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now()
	}
	e.Rooms = dedupRooms(rooms)

	detached := context.WithoutCancel(ctx)
	busCtx, cancel := context.WithTimeout(detached, publishTimeout)
	defer cancel()

	for _, room := range e.Rooms {
		if err := p.bus.Publish(busCtx, room, e); err != nil {
			p.logger.Warn("event publish failed",
				logx.String("type", string(e.Type)),
				logx.String("broadcast_id", e.BroadcastID),
				logx.String("room", room),
				logx.Err(err),
			)
		}
	}

	if p.sink == nil {
		return
	}
	sinkCtx, cancelSink := context.WithTimeout(detached, p.emitTimeout)
	defer cancelSink()
	if err := p.sink.Emit(sinkCtx, e); err != nil {
		p.logger.Warn("event stream emit failed",
			logx.String("type", string(e.Type)),
			logx.String("broadcast_id", e.BroadcastID),
			logx.Err(err),
		)
	}
}

func dedupRooms(rooms []string) []string {
	seen := make(map[string]struct{}, len(rooms))
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// TransporterRooms maps transporter ids to their rooms.
func TransporterRooms(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = domain.TransporterRoom(id)
	}
	return out
}
