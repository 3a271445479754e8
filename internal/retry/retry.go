// Package retry provides the bounded-retry combinator used around transactional store
// operations, lease acquisition and connection setup.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"truck-dispatch/internal/logx"
)

// Config describes how many attempts to make and how to back off between them.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Counter is satisfied by prometheus.Counter.
type Counter interface {
	Inc()
}

// Policy binds a Config to a retryable predicate and reporting hooks.
type Policy struct {
	Name      string
	Config    Config
	Retryable func(error) bool
	Logger    logx.Logger
	Retries   Counter
}

// ErrExhausted wraps the last error once every attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn until it succeeds, fails with a non-retryable error, the context is done,
// or MaxAttempts is reached. A retryable failure on the last attempt is returned
// wrapped in ErrExhausted (the original error stays reachable via errors.Is/As).
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := Backoff(p.Config.BaseDelay, p.Config.MaxDelay, attempt)
		if p.Retries != nil {
			p.Retries.Inc()
		}
		if p.Logger != nil {
			p.Logger.Warn("retrying operation",
				logx.String("op", p.Name),
				logx.Int("attempt", attempt),
				logx.Duration("delay", delay),
				logx.Err(err),
			)
		}
		if !Sleep(ctx, delay) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", p.Name, ErrExhausted, lastErr)
}

// Backoff doubles base per attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if max > 0 && (d > max || d <= 0) {
		return max
	}
	return d
}

// Sleep waits for d or until ctx is done; it reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
