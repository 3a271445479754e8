// Package cleanup removes the ephemeral state of a broadcast once it reaches a terminal
// state: the active marker, the idempotency marker, the timer entry and the notified set.
package cleanup

import (
	"context"
	"time"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/logx"
)

const cleanupTimeout = 3 * time.Second

type slotReleaser interface {
	Release(ctx context.Context, customerID, broadcastID string)
}

type fingerprintForgetter interface {
	Forget(ctx context.Context, fingerprint, broadcastID string)
}

type timerCanceller interface {
	Cancel(ctx context.Context, broadcastID string) error
}

type audienceClearer interface {
	Clear(ctx context.Context, broadcastID string) ([]string, error)
}

// Cleaner runs terminal cleanup. Every step is best effort and independent of the others;
// a failed step never reopens the broadcast.
type Cleaner struct {
	guard    slotReleaser
	dedup    fingerprintForgetter
	timers   timerCanceller
	audience audienceClearer
	logger   logx.Logger
}

// New creates a Cleaner.
func New(guard slotReleaser, dedup fingerprintForgetter, timers timerCanceller, audience audienceClearer, logger logx.Logger) *Cleaner {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Cleaner{guard: guard, dedup: dedup, timers: timers, audience: audience, logger: logger}
}

// Terminal cleans up b and returns the transporters that had been notified of it, so the
// caller can tell them the request is gone.
func (c *Cleaner) Terminal(ctx context.Context, b domain.Broadcast) []string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	c.guard.Release(ctx, b.CustomerID, b.ID)
	c.dedup.Forget(ctx, b.Fingerprint, b.ID)

	if err := c.timers.Cancel(ctx, b.ID); err != nil {
		c.logger.Warn("timer entry not removed",
			logx.String("broadcast_id", b.ID),
			logx.Err(err),
		)
	}

	notified, err := c.audience.Clear(ctx, b.ID)
	if err != nil {
		c.logger.Warn("notified set not cleared",
			logx.String("broadcast_id", b.ID),
			logx.Err(err),
		)
	}
	return notified
}
