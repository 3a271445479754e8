package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/service/timer"
	"truck-dispatch/internal/transport/kafka"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the API process.
type Runner struct {
	runFn func(*dig.Container) error
	exit  func(int)
}

// NewRunner returns a Runner bound to the API container layout.
func NewRunner() *Runner {
	return &Runner{runFn: run, exit: os.Exit}
}

// MustRun starts the HTTP server using the provided DI container
func (r *Runner) MustRun(container *dig.Container) {
	logger := containerLogger(container)
	err := r.runFn(container)
	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("startup aborted: startup timeout exceeded")
	default:
		logger.Error("run error", logx.Err(err))
		if r.exit != nil {
			r.exit(1)
		}
	}
}

func containerLogger(container *dig.Container) logx.Logger {
	logger := logx.Nop()
	_ = container.Invoke(func(l logx.Logger) { logger = l })
	return logger
}

type runIn struct {
	dig.In

	Ctx      context.Context
	Config   *config.Config
	Logger   logx.Logger
	Server   *http.Server
	Pprof    *http.Server `name:"pprof_server" optional:"true"`
	Poller   *timer.Poller
	Producer *kafka.Producer
	Pool     *pgxpool.Pool
	Redis    *redis.Client
}

func run(container *dig.Container) error {
	return container.Invoke(appRun)
}

func appRun(in runIn) error {
	serveErr := make(chan error, 2)
	startServer(in.Server, in.Logger, "api", serveErr)
	if in.Pprof != nil {
		startServer(in.Pprof, in.Logger, "pprof", serveErr)
	}

	pollCtx, stopPoller := context.WithCancel(in.Ctx)
	var wg sync.WaitGroup
	if in.Config.Timer.Enabled && in.Poller != nil {
		startPoller(pollCtx, &wg, in.Logger, in.Poller)
	}

	var err error
	select {
	case <-in.Ctx.Done():
		in.Logger.Info("shutting down dispatch-api")
		err = in.Ctx.Err()
	case err = <-serveErr:
		in.Logger.Error("server stopped unexpectedly", logx.Err(err))
	}

	gracefulShutdown(in.Server, in.Logger, shutdownTimeout)
	if in.Pprof != nil {
		gracefulShutdown(in.Pprof, in.Logger, shutdownTimeout)
	}
	stopPoller()
	wg.Wait()
	closeResources(in.Logger, in.Producer, in.Redis, in.Pool)
	return err
}

func startServer(server *http.Server, logger logx.Logger, name string, errs chan<- error) {
	go func() {
		logger.Info("listening", logx.String("server", name), logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
}

func startPoller(ctx context.Context, wg *sync.WaitGroup, logger logx.Logger, p *timer.Poller) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			logger.Error("timer poller exited", logx.Err(err))
		}
	}()
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
		if err := srv.Close(); err != nil {
			logger.Error("server close error", logx.Err(err))
		}
	}
}

func closeResources(logger logx.Logger, producer *kafka.Producer, rdb *redis.Client, pool *pgxpool.Pool) {
	if err := producer.Close(); err != nil {
		logger.Error("kafka producer close error", logx.Err(err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis close error", logx.Err(err))
		}
	}
	if pool != nil {
		pool.Close()
	}
}
