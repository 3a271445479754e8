package timer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/kvstore"
	"truck-dispatch/internal/lease"
	testlog "truck-dispatch/internal/testutil"
	"truck-dispatch/internal/testutil/memstore"
	"truck-dispatch/internal/testutil/redistest"
)

type countingExpirer struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	delay time.Duration
}

func (e *countingExpirer) Expire(_ context.Context, id string) (bool, error) {
	time.Sleep(e.delay)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return false, e.err
	}
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[id]++
	return e.calls[id] == 1, nil
}

func (e *countingExpirer) count(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

type counterStub struct{ n atomic.Int64 }

func (c *counterStub) Inc() { c.n.Add(1) }

// newInstance builds a poller as a separate process would: own locker, shared Redis.
func newInstance(rdb *redis.Client, exp Expirer, store overdueLister, fired *counterStub, now time.Time) *Poller {
	log := testlog.New().Logger()
	p := NewPoller(kvstore.NewTimerIndex(rdb), lease.New(rdb, log, nil), exp, store,
		Config{BatchSize: 10, FireLockTTL: time.Second}, fired, log)
	p.now = func() time.Time { return now }
	return p
}

func TestPollOnce_FiresDueEntriesOnly(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sched := NewScheduler(kvstore.NewTimerIndex(rdb))
	require.NoError(t, sched.Schedule(ctx, "due", now.Add(-time.Second)))
	require.NoError(t, sched.Schedule(ctx, "later", now.Add(time.Minute)))

	exp := &countingExpirer{}
	fired := &counterStub{}
	p := newInstance(rdb, exp, memstore.New(), fired, now)

	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, exp.count("due"))
	require.Zero(t, exp.count("later"))
	require.EqualValues(t, 1, fired.n.Load())

	_, ok, err := kvstore.NewTimerIndex(rdb).DueAt(ctx, "due")
	require.NoError(t, err)
	require.False(t, ok, "fired entry must be removed")
}

func TestPollOnce_RedundantInstancesFireOnce(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sched := NewScheduler(kvstore.NewTimerIndex(rdb))
	for _, id := range []string{"b1", "b2", "b3"} {
		require.NoError(t, sched.Schedule(ctx, id, now.Add(-time.Millisecond)))
	}

	exp := &countingExpirer{delay: 5 * time.Millisecond}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		p := newInstance(rdb, exp, memstore.New(), nil, now)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.PollOnce(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, id := range []string{"b1", "b2", "b3"} {
		require.Equal(t, 1, exp.count(id), id)
	}
}

func TestPollOnce_SurvivesInstanceRestart(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	start := time.Now().UTC()

	// instance A schedules the expiry and is gone before it is due
	require.NoError(t, NewScheduler(kvstore.NewTimerIndex(rdb)).Schedule(ctx, "b1", start.Add(120*time.Second)))

	exp := &countingExpirer{}
	early := newInstance(rdb, exp, memstore.New(), nil, start.Add(60*time.Second))
	n, err := early.PollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	b := newInstance(rdb, exp, memstore.New(), nil, start.Add(121*time.Second))
	n, err = b.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, exp.count("b1"))
}

func TestPollOnce_ExpiryErrorKeepsEntry(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, NewScheduler(kvstore.NewTimerIndex(rdb)).Schedule(ctx, "b1", now.Add(-time.Second)))

	p := newInstance(rdb, &countingExpirer{err: errors.New("db down")}, memstore.New(), nil, now)
	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, ok, err := kvstore.NewTimerIndex(rdb).DueAt(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok, "entry stays for the next poll")
}

func TestPollOnce_HeldLeaseSkips(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, NewScheduler(kvstore.NewTimerIndex(rdb)).Schedule(ctx, "b1", now.Add(-time.Second)))

	held, err := lease.New(rdb, nil, nil).TryAcquire(ctx, fireResourcePrefix+"b1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	exp := &countingExpirer{}
	n, err := newInstance(rdb, exp, memstore.New(), nil, now).PollOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, exp.count("b1"))
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	idx := kvstore.NewTimerIndex(rdb)
	s := NewScheduler(idx)

	require.NoError(t, s.Schedule(ctx, "b1", time.Now()))
	require.NoError(t, s.Cancel(ctx, "b1"))
	require.NoError(t, s.Cancel(ctx, "b1"))

	_, ok, err := idx.DueAt(ctx, "b1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReconcile_RestoresLostEntries(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	store := memstore.New()
	store.Put(domain.Broadcast{ID: "lost", CustomerID: "c1", Status: domain.StatusAwaitingResponses, ExpiresAt: now.Add(-time.Minute)})
	store.Put(domain.Broadcast{ID: "done", CustomerID: "c2", Status: domain.StatusCancelled, ExpiresAt: now.Add(-time.Minute)})
	store.Put(domain.Broadcast{ID: "future", CustomerID: "c3", Status: domain.StatusBroadcasting, ExpiresAt: now.Add(time.Minute)})

	exp := &countingExpirer{}
	p := newInstance(rdb, exp, store, nil, now)

	added, err := p.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	added, err = p.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, added)

	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, exp.count("lost"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	rdb, _ := redistest.New(t)
	now := time.Now().UTC()
	require.NoError(t, NewScheduler(kvstore.NewTimerIndex(rdb)).Schedule(context.Background(), "b1", now.Add(-time.Second)))

	exp := &countingExpirer{}
	p := newInstance(rdb, exp, memstore.New(), nil, now)
	p.cfg.PollInterval = 10 * time.Millisecond
	p.cfg.ReconcileInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return exp.count("b1") == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
