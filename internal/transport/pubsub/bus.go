// Package pubsub carries room-scoped lifecycle events between instances over Redis
// publish/subscribe.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

const channelPrefix = "dispatch:room:"

// Channel returns the pub/sub channel of a room.
func Channel(room string) string { return channelPrefix + room }

// Bus publishes and subscribes to rooms.
type Bus struct {
	rdb    redis.UniversalClient
	logger logx.Logger
}

// NewBus creates a Bus.
func NewBus(rdb redis.UniversalClient, logger logx.Logger) *Bus {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Bus{rdb: rdb, logger: logger}
}

// Publish sends e to every instance subscribed to room.
func (b *Bus) Publish(ctx context.Context, room string, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(room), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", room, err)
	}
	return nil
}

// Subscription delivers events of its rooms until closed.
type Subscription struct {
	C <-chan domain.Event

	ps   *redis.PubSub
	once sync.Once
	done chan struct{}
}

// Close stops delivery and closes C.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		<-s.done
	})
	return err
}

// Subscribe listens on rooms. The subscription is confirmed before returning, so events
// published afterwards are delivered.
func (b *Bus) Subscribe(ctx context.Context, rooms ...string) (*Subscription, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("subscribe: no rooms")
	}
	channels := make([]string, len(rooms))
	for i, r := range rooms {
		channels[i] = Channel(r)
	}
	ps := b.rdb.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe %s: %w", strings.Join(rooms, ","), err)
		}
	}

	out := make(chan domain.Event, 16)
	sub := &Subscription{C: out, ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()
	go func() {
		defer close(sub.done)
		defer close(out)
		for msg := range msgs {
			var e domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.logger.Warn("dropping malformed event",
					logx.String("channel", msg.Channel),
					logx.Err(err),
				)
				continue
			}
			select {
			case out <- e:
			default:
				b.logger.Warn("subscriber too slow, dropping event",
					logx.String("channel", msg.Channel),
					logx.String("event_id", e.ID),
				)
			}
		}
	}()
	return sub, nil
}
