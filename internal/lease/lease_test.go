package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-dispatch/internal/apperr"
	testlog "truck-dispatch/internal/testutil"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, testlog.New().Logger(), nil), mr
}

func TestTryAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	l, mr := newTestLocker(t)
	ctx := context.Background()

	first, err := l.TryAcquire(ctx, "timer-fire:b1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, first.Token, mustGet(t, mr, "lock:timer-fire:b1"))

	second, err := l.TryAcquire(ctx, "timer-fire:b1", time.Second)
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestRelease_OnlyOwner(t *testing.T) {
	t.Parallel()

	l, mr := newTestLocker(t)
	ctx := context.Background()

	owned, err := l.TryAcquire(ctx, "r", time.Minute)
	require.NoError(t, err)

	forged := &Lease{Resource: "r", Token: "someone-else"}
	ok, err := l.Release(ctx, forged)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, mr.Exists("lock:r"))

	ok, err = l.Release(ctx, owned)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, mr.Exists("lock:r"))

	ok, err = l.Release(ctx, owned)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLease_ExpiresWithoutRelease(t *testing.T) {
	t.Parallel()

	l, mr := newTestLocker(t)
	ctx := context.Background()

	_, err := l.TryAcquire(ctx, "r", 2*time.Second)
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)

	again, err := l.TryAcquire(ctx, "r", time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestAcquire_ContentionSurfacesLockUnavailable(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocker(t)
	ctx := context.Background()

	_, err := l.TryAcquire(ctx, "busy", time.Minute)
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Acquire(ctx, "busy", time.Second, 60*time.Millisecond)
	require.ErrorIs(t, err, apperr.LockUnavailable)
	require.True(t, IsUnavailable(err))
	require.Less(t, time.Since(start), time.Second)
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocker(t)
	ctx := context.Background()

	held, err := l.TryAcquire(ctx, "r", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = l.Release(context.Background(), held)
	}()

	got, err := l.Acquire(ctx, "r", time.Second, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestWithLock_MutualExclusion(t *testing.T) {
	t.Parallel()

	l, mr := newTestLocker(t)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "customer-broadcast-create:c1", time.Second, 2*time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxInside)
	require.False(t, mr.Exists("lock:customer-broadcast-create:c1"))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	t.Parallel()

	l, mr := newTestLocker(t)
	err := l.WithLock(context.Background(), "r", time.Second, 0, func(context.Context) error {
		return apperr.AlreadyActive
	})
	require.ErrorIs(t, err, apperr.AlreadyActive)
	require.False(t, mr.Exists("lock:r"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
