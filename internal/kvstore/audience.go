package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Audience tracks which transporters were notified of a broadcast and, per transporter,
// the inbox of broadcasts still actionable for them.
type Audience struct {
	rdb redis.UniversalClient
}

// NewAudience creates an Audience store.
func NewAudience(rdb redis.UniversalClient) *Audience {
	return &Audience{rdb: rdb}
}

// AddNotified records the transporters and puts the broadcast in each inbox.
func (a *Audience) AddNotified(ctx context.Context, broadcastID string, transporterIDs []string, at time.Time, ttl time.Duration) error {
	if len(transporterIDs) == 0 {
		return nil
	}
	members := make([]any, len(transporterIDs))
	for i, id := range transporterIDs {
		members[i] = id
	}
	_, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, notifiedPrefix+broadcastID, members...)
		p.Expire(ctx, notifiedPrefix+broadcastID, ttl)
		for _, id := range transporterIDs {
			p.ZAdd(ctx, inboxPrefix+id, redis.Z{Score: float64(at.UnixMilli()), Member: broadcastID})
			p.Expire(ctx, inboxPrefix+id, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add notified %s: %w", broadcastID, err)
	}
	return nil
}

// Notified returns the transporters notified of a broadcast.
func (a *Audience) Notified(ctx context.Context, broadcastID string) ([]string, error) {
	ids, err := a.rdb.SMembers(ctx, notifiedPrefix+broadcastID).Result()
	if err != nil {
		return nil, fmt.Errorf("notified %s: %w", broadcastID, err)
	}
	return ids, nil
}

// Inbox lists the newest broadcast ids in a transporter's actionable view.
func (a *Audience) Inbox(ctx context.Context, transporterID string, limit int) ([]string, error) {
	ids, err := a.rdb.ZRevRange(ctx, inboxPrefix+transporterID, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("inbox %s: %w", transporterID, err)
	}
	return ids, nil
}

// RemoveFromInbox drops a broadcast from one transporter's view.
func (a *Audience) RemoveFromInbox(ctx context.Context, transporterID, broadcastID string) error {
	if err := a.rdb.ZRem(ctx, inboxPrefix+transporterID, broadcastID).Err(); err != nil {
		return fmt.Errorf("inbox remove %s/%s: %w", transporterID, broadcastID, err)
	}
	return nil
}

// Clear removes the broadcast from every notified inbox and drops the notified set.
// It returns the transporters that had been notified.
func (a *Audience) Clear(ctx context.Context, broadcastID string) ([]string, error) {
	ids, err := a.Notified(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.ZRem(ctx, inboxPrefix+id, broadcastID)
		}
		p.Del(ctx, notifiedPrefix+broadcastID)
		return nil
	})
	if err != nil {
		return ids, fmt.Errorf("clear audience %s: %w", broadcastID, err)
	}
	return ids, nil
}
