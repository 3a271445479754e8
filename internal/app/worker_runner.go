package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/service/timer"
	"truck-dispatch/internal/transport/kafka"
)

// WorkerRunner runs the background worker: the push consumer and the expiry poller.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun runs the worker until its context is cancelled and panics on any other failure.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

type workerIn struct {
	dig.In

	Ctx      context.Context
	Config   *config.Config
	Logger   logx.Logger
	Consumer *kafka.Consumer
	Poller   *timer.Poller
	Producer *kafka.Producer
	Pool     *pgxpool.Pool
	Redis    *redis.Client
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(in workerIn) error {
	pollerOn := in.Config.Timer.Enabled && in.Poller != nil
	if in.Consumer == nil && !pollerOn {
		return fmt.Errorf("kafka consumer is nil and timer is disabled: worker has nothing to run")
	}
	defer closeWorker(in)

	g, ctx := errgroup.WithContext(in.Ctx)
	if in.Consumer != nil {
		g.Go(func() error { return in.Consumer.Run(ctx) })
	}
	if pollerOn {
		g.Go(func() error { return in.Poller.Run(ctx) })
	}

	in.Logger.Info("dispatch-worker started",
		logx.Bool("consumer", in.Consumer != nil),
		logx.Bool("timer", pollerOn),
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return in.Ctx.Err()
}

func closeWorker(in workerIn) {
	if err := in.Consumer.Close(); err != nil {
		in.Logger.Error("kafka close error", logx.Err(err))
	}
	closeResources(in.Logger, in.Producer, in.Redis, in.Pool)
}
