package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryPrefix = "push:sent:"

// Deliveries remembers which out-of-band notifications were already handed to the sender,
// so a redelivered stream message does not notify twice.
type Deliveries struct {
	rdb redis.UniversalClient
}

// NewDeliveries creates a Deliveries ledger.
func NewDeliveries(rdb redis.UniversalClient) *Deliveries {
	return &Deliveries{rdb: rdb}
}

// Claim records key; false means it was already recorded.
func (d *Deliveries) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, deliveryPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", key, err)
	}
	return ok, nil
}

// Release forgets key so the delivery can be attempted again.
func (d *Deliveries) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, deliveryPrefix+key).Err(); err != nil {
		return fmt.Errorf("release delivery %s: %w", key, err)
	}
	return nil
}
