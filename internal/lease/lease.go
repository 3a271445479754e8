// Package lease implements TTL-bounded, owner-token-verified mutual exclusion on top of
// the shared key-value store. Every lease expires on its own, so a crashed holder never
// leaves a resource locked.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"truck-dispatch/internal/apperr"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/retry"
)

const keyPrefix = "lock:"

const (
	acquireBackoffStart = 25 * time.Millisecond
	acquireBackoffMax   = 250 * time.Millisecond
)

// compare-and-delete: only the owner token may release.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lease is a held lock.
type Lease struct {
	Resource   string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time
}

// Locker hands out leases.
type Locker struct {
	rdb        redis.UniversalClient
	logger     logx.Logger
	contention retry.Counter
	newToken   func() string
	now        func() time.Time
}

// New creates a Locker. contention may be nil.
func New(rdb redis.UniversalClient, logger logx.Logger, contention retry.Counter) *Locker {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Locker{
		rdb:        rdb,
		logger:     logger,
		contention: contention,
		newToken:   uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// TryAcquire makes a single SET NX PX attempt. It returns (nil, nil) when another owner
// holds the resource.
func (l *Locker) TryAcquire(ctx context.Context, resource string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease %q: ttl must be positive", resource)
	}
	token := l.newToken()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+resource, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", resource, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{Resource: resource, Token: token, TTL: ttl, AcquiredAt: l.now()}, nil
}

// Acquire retries TryAcquire with backoff until wait elapses. Contention past the budget
// yields apperr.LockUnavailable; store failures are returned as-is so callers can degrade.
func (l *Locker) Acquire(ctx context.Context, resource string, ttl, wait time.Duration) (*Lease, error) {
	deadline := l.now().Add(wait)
	for attempt := 1; ; attempt++ {
		ls, err := l.TryAcquire(ctx, resource, ttl)
		if err != nil || ls != nil {
			return ls, err
		}
		if l.contention != nil {
			l.contention.Inc()
		}
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return nil, apperr.Wrap(apperr.CodeLockUnavailable, "resource is busy", fmt.Errorf("lease %q held by another owner", resource))
		}
		delay := retry.Backoff(acquireBackoffStart, acquireBackoffMax, attempt)
		if delay > remaining {
			delay = remaining
		}
		if !retry.Sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

// Release deletes the lease if it is still owned by this token. Releasing an expired or
// foreign lease reports false without error.
func (l *Locker) Release(ctx context.Context, ls *Lease) (bool, error) {
	if ls == nil {
		return false, nil
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + ls.Resource}, ls.Token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lease %q: %w", ls.Resource, err)
	}
	return n == 1, nil
}

// WithLock runs fn while holding the resource and releases it afterwards, whatever fn returns.
func (l *Locker) WithLock(ctx context.Context, resource string, ttl, wait time.Duration, fn func(context.Context) error) error {
	ls, err := l.Acquire(ctx, resource, ttl, wait)
	if err != nil {
		return err
	}
	defer l.release(ls)
	return fn(ctx)
}

// release uses a fresh context so a cancelled request still frees its lease.
func (l *Locker) release(ls *Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.Release(ctx, ls); err != nil {
		l.logger.Warn("lease release failed",
			logx.String("resource", ls.Resource),
			logx.Err(err),
		)
	}
}

// IsUnavailable reports lease contention past the wait budget.
func IsUnavailable(err error) bool {
	return errors.Is(err, apperr.LockUnavailable)
}
