package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testlog "truck-dispatch/internal/testutil"
)

type counterStub struct{ n int64 }

func (c *counterStub) Inc()         { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 { return atomic.LoadInt64(&c.n) }

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestPolicy_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	ctr := &counterStub{}
	p := Policy{Name: "op", Config: Config{MaxAttempts: 5}, Retryable: isTransient, Logger: rec.Logger(), Retries: ctr}

	var calls int32
	err := p.Do(context.Background(), func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	require.EqualValues(t, 3, calls)
	require.EqualValues(t, 2, ctr.Count())
	require.Len(t, rec.Find("warn", "retrying operation"), 2)
}

func TestPolicy_NoRetryOnPermanent(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	p := Policy{Name: "op", Config: Config{MaxAttempts: 3}, Retryable: isTransient}

	var calls int32
	err := p.Do(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	require.NotErrorIs(t, err, ErrExhausted)
	require.EqualValues(t, 1, calls)
}

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	p := Policy{Name: "accept", Config: Config{MaxAttempts: 3}, Retryable: isTransient}

	var calls int32
	err := p.Do(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errTransient
	})

	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errTransient)
	require.EqualValues(t, 3, calls)
}

func TestPolicy_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Name: "op", Config: Config{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}, Retryable: isTransient}

	var calls int32
	err := p.Do(ctx, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		cancel()
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	require.EqualValues(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Duration(0), Backoff(0, time.Second, 3))
	require.Equal(t, 10*time.Millisecond, Backoff(10*time.Millisecond, time.Second, 1))
	require.Equal(t, 40*time.Millisecond, Backoff(10*time.Millisecond, time.Second, 3))
	require.Equal(t, 50*time.Millisecond, Backoff(10*time.Millisecond, 50*time.Millisecond, 4))
}

func TestSleep_ContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, Sleep(ctx, time.Hour))
	require.True(t, Sleep(context.Background(), 0))
}
