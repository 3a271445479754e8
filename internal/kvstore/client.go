// Package kvstore holds the shared key-value state: TTL'd markers, the timer index and the
// notified-transporter sets. Nothing here is authoritative; the relational store is.
package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"truck-dispatch/internal/config"
)

// Key layout.
const (
	activeCustomerPrefix = "broadcast:active-customer:"
	idempotencyPrefix    = "broadcast:idem:"
	notifiedPrefix       = "broadcast:notified:"
	inboxPrefix          = "transporter:inbox:"
	timerIndexKey        = "broadcast:timers"
)

// NewClient creates and pings a Redis client.
func NewClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
