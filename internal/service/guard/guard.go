// Package guard enforces at most one non-terminal broadcast per customer.
package guard

import (
	"context"
	"fmt"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/lease"
	"truck-dispatch/internal/logx"
)

const resourcePrefix = "customer-broadcast-create:"

// Config holds the guard timings.
type Config struct {
	LockTTL   time.Duration
	LockWait  time.Duration
	MarkerTTL time.Duration
}

// Guard serializes check-then-create per customer.
type Guard struct {
	locks   locker
	markers markerStore
	store   broadcastReader
	cfg     Config
	logger  logx.Logger
}

// New creates a Guard.
func New(locks locker, markers markerStore, store broadcastReader, cfg Config, logger logx.Logger) *Guard {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Guard{locks: locks, markers: markers, store: store, cfg: cfg, logger: logger}
}

// Run executes fn while holding the customer's create lease. Contention past the wait budget
// fails with LOCK_UNAVAILABLE; an unreachable lock store degrades to running fn unlocked,
// leaving the store check and the unique index as the backstop.
func (g *Guard) Run(ctx context.Context, customerID string, fn func(ctx context.Context) error) error {
	held := false
	err := g.locks.WithLock(ctx, resourcePrefix+customerID, g.cfg.LockTTL, g.cfg.LockWait, func(ctx context.Context) error {
		held = true
		return fn(ctx)
	})
	switch {
	case held, err == nil:
		return err
	case lease.IsUnavailable(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	g.logger.Warn("create lock unavailable, falling back to store check",
		logx.String("customer_id", customerID),
		logx.Err(err),
	)
	return fn(ctx)
}

// Active returns the customer's live broadcast, or nil. The marker is only a hint: it is
// verified against the store and dropped when stale.
func (g *Guard) Active(ctx context.Context, customerID string) (*domain.Broadcast, error) {
	id, ok, err := g.markers.ActiveBroadcast(ctx, customerID)
	switch {
	case err != nil:
		g.logger.Warn("active marker lookup failed",
			logx.String("customer_id", customerID),
			logx.Err(err),
		)
	case ok:
		b, err := g.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if b != nil && b.Status.Active() {
			return b, nil
		}
		if _, err := g.markers.ClearActiveBroadcast(ctx, customerID, id); err != nil {
			g.logger.Warn("stale active marker not cleared",
				logx.String("customer_id", customerID),
				logx.String("broadcast_id", id),
				logx.Err(err),
			)
		}
	}

	b, err := g.store.ActiveForCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("active broadcast check: %w", err)
	}
	return b, nil
}

// Mark records the customer's new live broadcast. Best effort.
func (g *Guard) Mark(ctx context.Context, customerID, broadcastID string) {
	if err := g.markers.SetActiveBroadcast(ctx, customerID, broadcastID, g.cfg.MarkerTTL); err != nil {
		g.logger.Warn("active marker not set",
			logx.String("customer_id", customerID),
			logx.String("broadcast_id", broadcastID),
			logx.Err(err),
		)
	}
}

// Release drops the marker if it still points to broadcastID. Best effort.
func (g *Guard) Release(ctx context.Context, customerID, broadcastID string) {
	if _, err := g.markers.ClearActiveBroadcast(ctx, customerID, broadcastID); err != nil {
		g.logger.Warn("active marker not released",
			logx.String("customer_id", customerID),
			logx.String("broadcast_id", broadcastID),
			logx.Err(err),
		)
	}
}
