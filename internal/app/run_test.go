package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/kvstore"
	"truck-dispatch/internal/lease"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/service/timer"
	testlog "truck-dispatch/internal/testutil"
	"truck-dispatch/internal/testutil/redistest"
	"truck-dispatch/internal/transport/kafka"
)

type countingExpirer struct{ n atomic.Int32 }

func (e *countingExpirer) Expire(context.Context, string) (bool, error) {
	e.n.Add(1)
	return true, nil
}

type noOverdue struct{}

func (noOverdue) ListOverdue(context.Context, time.Time, int) ([]domain.Broadcast, error) {
	return nil, nil
}

func newTestPoller(t *testing.T, exp timer.Expirer) (*timer.Poller, *kvstore.TimerIndex) {
	t.Helper()
	rdb, _ := redistest.New(t)
	idx := kvstore.NewTimerIndex(rdb)
	p := timer.NewPoller(idx, lease.New(rdb, logx.Nop(), nil), exp, noOverdue{},
		timer.Config{PollInterval: 5 * time.Millisecond, BatchSize: 10}, nil, logx.Nop())
	return p, idx
}

// provideRunDeps registers everything appRun needs except the poller.
func provideRunDeps(t *testing.T, c *dig.Container, ctx context.Context, cfg *config.Config, logger logx.Logger) {
	t.Helper()
	require.NoError(t, provideAll(c,
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		func() logx.Logger { return logger },
		func() *http.Server {
			return &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
		},
		func() *kafka.Producer { return nil },
		func() *pgxpool.Pool { return nil },
		func() *redis.Client { return nil },
	))
}

func TestRunner_MustRun_ShutdownRequested(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	container := dig.New()
	require.NoError(t, container.Provide(func() logx.Logger { return rec.Logger() }))

	r := &Runner{runFn: func(*dig.Container) error { return context.Canceled }}
	r.MustRun(container)
	require.Len(t, rec.Find("info", "shutdown requested, exiting"), 1)
}

func TestRunner_MustRun_StartupTimeout(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	container := dig.New()
	require.NoError(t, container.Provide(func() logx.Logger { return rec.Logger() }))

	r := &Runner{runFn: func(*dig.Container) error { return context.DeadlineExceeded }}
	r.MustRun(container)
	require.Len(t, rec.Find("error", "startup aborted: startup timeout exceeded"), 1)
}

func TestRunner_MustRun_ExitsOnOtherError(t *testing.T) {
	t.Parallel()

	var code int
	r := &Runner{
		runFn: func(*dig.Container) error { return errors.New("listen failed") },
		exit:  func(c int) { code = c },
	}
	r.MustRun(dig.New())
	require.Equal(t, 1, code)
}

func TestNewRunner_DefaultFields(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	require.NotNil(t, r)
	require.NotNil(t, r.exit)
	require.Equal(t, fmt.Sprintf("%p", run), fmt.Sprintf("%p", r.runFn))
}

func TestGracefulShutdown_DoesNotPanic(t *testing.T) {
	t.Parallel()

	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NewServeMux(),
	}

	require.NotPanics(t, func() {
		gracefulShutdown(srv, logx.Nop(), 100*time.Millisecond)
	})
}

func TestCloseResources_NilSafe(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		closeResources(logx.Nop(), nil, nil, nil)
	})
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := testlog.New()
	cfg := testConfig()
	c := dig.New()
	provideRunDeps(t, c, ctx, cfg, rec.Logger())
	require.NoError(t, c.Provide(func() *timer.Poller { return nil }))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := run(c)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, rec.Find("info", "shutting down dispatch-api"), 1)
}

func TestRun_StartsPollerWhenTimerEnabled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exp := &countingExpirer{}
	poller, idx := newTestPoller(t, exp)
	require.NoError(t, idx.Add(ctx, "b1", time.Now().Add(-time.Second)))

	cfg := testConfig()
	cfg.Timer.Enabled = true
	c := dig.New()
	provideRunDeps(t, c, ctx, cfg, logx.Nop())
	require.NoError(t, c.Provide(func() *timer.Poller { return poller }))

	done := make(chan error, 1)
	go func() { done <- run(c) }()

	requireEventually(t, time.Second, 5*time.Millisecond,
		func() bool { return exp.n.Load() > 0 },
		"expected the poller to fire the due timer")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

// requireEventually polls condition until it holds or timeout passes.
func requireEventually(t *testing.T, timeout, tick time.Duration, condition func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		<-ticker.C
	}
}
