package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// returns the owner after the attempt; equal to ARGV[1] when this caller claimed it
var claimScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return ARGV[1]
end
return redis.call("GET", KEYS[1])`)

// sets when the key is absent or still holds the expected stale value
var compareAndSet = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false or cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0`)

// Markers stores the ActiveBroadcastMarker and IdempotencyMarker caches.
type Markers struct {
	rdb redis.UniversalClient
}

// NewMarkers creates a Markers store.
func NewMarkers(rdb redis.UniversalClient) *Markers {
	return &Markers{rdb: rdb}
}

// ActiveBroadcast returns the cached active broadcast id for a customer.
func (m *Markers) ActiveBroadcast(ctx context.Context, customerID string) (string, bool, error) {
	return m.get(ctx, activeCustomerPrefix+customerID)
}

// SetActiveBroadcast records the customer's live broadcast.
func (m *Markers) SetActiveBroadcast(ctx context.Context, customerID, broadcastID string, ttl time.Duration) error {
	if err := m.rdb.Set(ctx, activeCustomerPrefix+customerID, broadcastID, ttl).Err(); err != nil {
		return fmt.Errorf("set active marker %s: %w", customerID, err)
	}
	return nil
}

// ClearActiveBroadcast removes the marker only while it still points to broadcastID, so a
// late cleanup never drops the marker of a newer broadcast.
func (m *Markers) ClearActiveBroadcast(ctx context.Context, customerID, broadcastID string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, m.rdb, []string{activeCustomerPrefix + customerID}, broadcastID).Int64()
	if err != nil {
		return false, fmt.Errorf("clear active marker %s: %w", customerID, err)
	}
	return n == 1, nil
}

// ClaimIdempotency atomically sets fingerprint→candidateID if absent. It returns the
// current owner; claimed is true when the owner is candidateID.
func (m *Markers) ClaimIdempotency(ctx context.Context, fingerprint, candidateID string, ttl time.Duration) (owner string, claimed bool, err error) {
	key := idempotencyPrefix + fingerprint
	for attempt := 0; attempt < 2; attempt++ {
		owner, err = claimScript.Run(ctx, m.rdb, []string{key}, candidateID, ttl.Milliseconds()).Text()
		if errors.Is(err, redis.Nil) {
			// expired between SET NX and GET
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("claim idempotency %s: %w", fingerprint, err)
		}
		return owner, owner == candidateID, nil
	}
	return "", false, fmt.Errorf("claim idempotency %s: marker flapping", fingerprint)
}

// ReplaceIdempotency takes over a marker still pointing at stale.
func (m *Markers) ReplaceIdempotency(ctx context.Context, fingerprint, stale, broadcastID string, ttl time.Duration) (bool, error) {
	n, err := compareAndSet.Run(ctx, m.rdb, []string{idempotencyPrefix + fingerprint}, stale, broadcastID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("replace idempotency %s: %w", fingerprint, err)
	}
	return n == 1, nil
}

// Idempotency returns the broadcast id recorded for a fingerprint.
func (m *Markers) Idempotency(ctx context.Context, fingerprint string) (string, bool, error) {
	return m.get(ctx, idempotencyPrefix+fingerprint)
}

// ClearIdempotency removes the marker while it still points to broadcastID.
func (m *Markers) ClearIdempotency(ctx context.Context, fingerprint, broadcastID string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, m.rdb, []string{idempotencyPrefix + fingerprint}, broadcastID).Int64()
	if err != nil {
		return false, fmt.Errorf("clear idempotency %s: %w", fingerprint, err)
	}
	return n == 1, nil
}

func (m *Markers) get(ctx context.Context, key string) (string, bool, error) {
	v, err := m.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}
