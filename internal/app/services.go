package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"truck-dispatch/internal/config"
	"truck-dispatch/internal/kvstore"
	"truck-dispatch/internal/lease"
	"truck-dispatch/internal/logx"
	"truck-dispatch/internal/metrics"
	"truck-dispatch/internal/pricing"
	"truck-dispatch/internal/repository"
	"truck-dispatch/internal/retry"
	"truck-dispatch/internal/service/acceptance"
	"truck-dispatch/internal/service/broadcast"
	"truck-dispatch/internal/service/cancellation"
	"truck-dispatch/internal/service/cleanup"
	"truck-dispatch/internal/service/dedup"
	"truck-dispatch/internal/service/fanout"
	"truck-dispatch/internal/service/guard"
	"truck-dispatch/internal/service/timer"
	"truck-dispatch/internal/transport/kafka"
	"truck-dispatch/internal/transport/pubsub"
)

func txRetry(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxAttempts: cfg.Broadcast.TxMaxAttempts,
		BaseDelay:   cfg.Broadcast.TxBaseDelay,
		MaxDelay:    cfg.Broadcast.TxMaxDelay,
	}
}

type lockerIn struct {
	dig.In

	Redis      redis.UniversalClient
	Logger     logx.Logger
	Contention prometheus.Counter `name:"lock_contention_total"`
}

func newLocker(in lockerIn) *lease.Locker {
	return lease.New(in.Redis, in.Logger, in.Contention)
}

func newGuard(
	cfg *config.Config,
	locks *lease.Locker,
	markers *kvstore.Markers,
	repo *repository.BroadcastRepo,
	logger logx.Logger,
) *guard.Guard {
	return guard.New(locks, markers, repo, guard.Config{
		LockTTL:   cfg.Broadcast.CreateLockTTL,
		LockWait:  cfg.Broadcast.CreateLockWait,
		MarkerTTL: cfg.Broadcast.MarkerTTL(),
	}, logger)
}

func newDeduplicator(
	cfg *config.Config,
	markers *kvstore.Markers,
	repo *repository.BroadcastRepo,
	logger logx.Logger,
) *dedup.Deduplicator {
	return dedup.New(markers, repo, cfg.Broadcast.MarkerTTL(), logger)
}

func newProducer(cfg *config.Config, logger logx.Logger) (*kafka.Producer, error) {
	return kafka.NewProducer(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

func newPublisher(bus *pubsub.Bus, producer *kafka.Producer, logger logx.Logger) *fanout.Publisher {
	var sink fanout.Sink
	if producer != nil {
		sink = producer
	}
	return fanout.New(bus, sink, logger)
}

func newCleaner(
	g *guard.Guard,
	d *dedup.Deduplicator,
	sched *timer.Scheduler,
	aud *kvstore.Audience,
	logger logx.Logger,
) *cleanup.Cleaner {
	return cleanup.New(g, d, sched, aud, logger)
}

func newScheduler(timers *kvstore.TimerIndex) *timer.Scheduler {
	return timer.NewScheduler(timers)
}

type broadcastIn struct {
	dig.In

	Config    *config.Config
	Repo      *repository.BroadcastRepo
	Fleet     *repository.FleetRepo
	Guard     *guard.Guard
	Dedup     *dedup.Deduplicator
	Scheduler *timer.Scheduler
	Audience  *kvstore.Audience
	Pricing   pricing.Estimator
	Publisher *fanout.Publisher
	Cleaner   *cleanup.Cleaner
	Outcomes  *metrics.Outcomes
	Retries   prometheus.Counter `name:"tx_retries_total"`
	Logger    logx.Logger
}

func newBroadcastService(in broadcastIn) *broadcast.Service {
	b := in.Config.Broadcast
	return broadcast.NewService(broadcast.Deps{
		Runner:    in.Repo,
		Store:     in.Repo,
		Guard:     in.Guard,
		Dedup:     in.Dedup,
		Scheduler: in.Scheduler,
		Fleet:     in.Fleet,
		Audience:  in.Audience,
		Pricing:   in.Pricing,
		Publisher: in.Publisher,
		Cleaner:   in.Cleaner,
		Outcomes:  in.Outcomes,
	}, broadcast.Config{
		Timeout:          b.Timeout,
		MarkerTTL:        b.MarkerTTL(),
		MaxTrucks:        b.MaxTrucks,
		Retry:            txRetry(in.Config),
		OperationTimeout: b.OperationTimeout,
	}, in.Retries, in.Logger)
}

type acceptanceIn struct {
	dig.In

	Config    *config.Config
	Repo      *repository.BroadcastRepo
	Publisher *fanout.Publisher
	Cleaner   *cleanup.Cleaner
	Audience  *kvstore.Audience
	Outcomes  *metrics.Outcomes
	Retries   prometheus.Counter `name:"tx_retries_total"`
	Logger    logx.Logger
}

func newAcceptanceService(in acceptanceIn) *acceptance.Service {
	return acceptance.NewService(in.Repo, in.Publisher, in.Cleaner, in.Audience, in.Outcomes, in.Retries,
		acceptance.Config{
			Retry:            txRetry(in.Config),
			OperationTimeout: in.Config.Broadcast.OperationTimeout,
		}, in.Logger)
}

type cancellationIn struct {
	dig.In

	Config    *config.Config
	Repo      *repository.BroadcastRepo
	Publisher *fanout.Publisher
	Cleaner   *cleanup.Cleaner
	Outcomes  *metrics.Outcomes
	Retries   prometheus.Counter `name:"tx_retries_total"`
	Logger    logx.Logger
}

func newCancellationService(in cancellationIn) *cancellation.Service {
	return cancellation.NewService(in.Repo, in.Publisher, in.Cleaner, in.Outcomes, in.Retries,
		cancellation.Config{
			Retry:            txRetry(in.Config),
			OperationTimeout: in.Config.Broadcast.OperationTimeout,
		}, in.Logger)
}

type pollerIn struct {
	dig.In

	Config  *config.Config
	Timers  *kvstore.TimerIndex
	Locks   *lease.Locker
	Expirer *broadcast.Service
	Repo    *repository.BroadcastRepo
	Fired   prometheus.Counter `name:"timer_fired_total"`
	Logger  logx.Logger
}

func newPoller(in pollerIn) *timer.Poller {
	t := in.Config.Timer
	return timer.NewPoller(in.Timers, in.Locks, in.Expirer, in.Repo, timer.Config{
		PollInterval:      t.PollInterval,
		BatchSize:         t.BatchSize,
		FireLockTTL:       t.FireLockTTL,
		ReconcileInterval: t.ReconcileInterval,
	}, in.Fired, in.Logger)
}

func registerDomainServices(container *dig.Container) error {
	return provideAll(container,
		repository.NewBroadcastRepo,
		repository.NewFleetRepo,
		kvstore.NewMarkers,
		kvstore.NewTimerIndex,
		kvstore.NewAudience,
		kvstore.NewDeliveries,
		pubsub.NewBus,
		pricing.NewFlatTable,
		newLocker,
		newGuard,
		newDeduplicator,
		newProducer,
		newPublisher,
		newCleaner,
		newScheduler,
		newBroadcastService,
		newAcceptanceService,
		newCancellationService,
		newPoller,
	)
}
