// Package timer is the shared expiry scheduler. Pending expiries live in a sorted set in
// the shared store, so every instance can poll them and a restart loses nothing; a
// per-broadcast lease makes each expiry fire once.
package timer

import (
	"context"
	"time"

	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/retry"
)

const fireResourcePrefix = "timer-fire:"

// Config holds the poller settings.
type Config struct {
	PollInterval      time.Duration
	BatchSize         int
	FireLockTTL       time.Duration
	ReconcileInterval time.Duration
}

// Scheduler adds and removes pending expiries.
type Scheduler struct {
	index index
}

// NewScheduler creates a Scheduler.
func NewScheduler(idx index) *Scheduler {
	return &Scheduler{index: idx}
}

// Schedule sets or moves the broadcast's expiry.
func (s *Scheduler) Schedule(ctx context.Context, broadcastID string, dueAt time.Time) error {
	return s.index.Add(ctx, broadcastID, dueAt)
}

// Cancel drops the broadcast's pending expiry.
func (s *Scheduler) Cancel(ctx context.Context, broadcastID string) error {
	_, err := s.index.Remove(ctx, broadcastID)
	return err
}

// Poller fires due expiries. Run it on every instance.
type Poller struct {
	index   index
	locks   locker
	expirer Expirer
	store   overdueLister
	cfg     Config
	fired   retry.Counter
	logger  logx.Logger
	now     func() time.Time
}

// NewPoller creates a Poller. fired may be nil.
func NewPoller(idx index, locks locker, expirer Expirer, store overdueLister, cfg Config, fired retry.Counter, logger logx.Logger) *Poller {
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FireLockTTL <= 0 {
		cfg.FireLockTTL = 15 * time.Second
	}
	return &Poller{
		index:   idx,
		locks:   locks,
		expirer: expirer,
		store:   store,
		cfg:     cfg,
		fired:   fired,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PollOnce fires every due entry this instance manages to lease and returns how many
// broadcasts it expired.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	now := p.now()
	ids, err := p.index.Due(ctx, now, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		if p.fire(ctx, id, now) {
			fired++
		}
	}
	return fired, nil
}

func (p *Poller) fire(ctx context.Context, id string, now time.Time) bool {
	ls, err := p.locks.TryAcquire(ctx, fireResourcePrefix+id, p.cfg.FireLockTTL)
	if err != nil {
		p.logger.Warn("timer lease failed", logx.String("broadcast_id", id), logx.Err(err))
		return false
	}
	if ls == nil {
		return false
	}
	defer func() {
		if _, err := p.locks.Release(context.WithoutCancel(ctx), ls); err != nil {
			p.logger.Warn("timer lease release failed", logx.String("broadcast_id", id), logx.Err(err))
		}
	}()

	// another instance may have fired or rescheduled it between Due and the lease
	due, ok, err := p.index.DueAt(ctx, id)
	if err != nil {
		p.logger.Warn("timer entry check failed", logx.String("broadcast_id", id), logx.Err(err))
		return false
	}
	if !ok || due.After(now) {
		return false
	}

	expired, err := p.expirer.Expire(ctx, id)
	if err != nil {
		p.logger.Error("broadcast expiry failed, will retry",
			logx.String("broadcast_id", id),
			logx.Err(err),
		)
		return false
	}
	if _, err := p.index.Remove(ctx, id); err != nil {
		p.logger.Warn("timer entry not removed", logx.String("broadcast_id", id), logx.Err(err))
	}
	if expired && p.fired != nil {
		p.fired.Inc()
	}
	return expired
}

// Reconcile re-indexes overdue live broadcasts whose timer entry was lost.
func (p *Poller) Reconcile(ctx context.Context) (int, error) {
	overdue, err := p.store.ListOverdue(ctx, p.now(), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, b := range overdue {
		ok, err := p.index.AddIfAbsent(ctx, b.ID, b.ExpiresAt)
		if err != nil {
			return added, err
		}
		if ok {
			added++
			p.logger.Warn("timer entry restored", logx.String("broadcast_id", b.ID))
		}
	}
	return added, nil
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	var reconcile <-chan time.Time
	if p.cfg.ReconcileInterval > 0 {
		t := time.NewTicker(p.cfg.ReconcileInterval)
		defer t.Stop()
		reconcile = t.C
	}

	p.logger.Info("timer poller started",
		logx.Duration("interval", p.cfg.PollInterval),
		logx.Int("batch", p.cfg.BatchSize),
	)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("timer poller stopped")
			return nil
		case <-poll.C:
			if n, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("timer poll failed", logx.Err(err))
			} else if n > 0 {
				p.logger.Info("broadcasts expired", logx.Int("count", n))
			}
		case <-reconcile:
			if _, err := p.Reconcile(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("timer reconcile failed", logx.Err(err))
			}
		}
	}
}
