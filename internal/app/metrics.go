package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"truck-dispatch/internal/metrics"
)

type metricsOut struct {
	dig.Out

	RateLimitExceededTotal prometheus.Counter `name:"rate_limit_exceeded_total"`
	TxRetriesTotal         prometheus.Counter `name:"tx_retries_total"`
	LockContentionTotal    prometheus.Counter `name:"lock_contention_total"`
	TimerFiredTotal        prometheus.Counter `name:"timer_fired_total"`
	Outcomes               *metrics.Outcomes
	Gatherer               prometheus.Gatherer
}

// provideMetrics registers the dispatch collectors on the default registry. Collectors that
// are already registered are reused.
func provideMetrics() (metricsOut, error) {
	reg := prometheus.DefaultRegisterer

	rl, err := metrics.Ensure(reg, "rate_limit_exceeded_total", metrics.NewRateLimitExceededTotal())
	if err != nil {
		return metricsOut{}, err
	}
	tx, err := metrics.Ensure(reg, "dispatch_tx_retries_total", metrics.NewTxRetriesTotal())
	if err != nil {
		return metricsOut{}, err
	}
	lock, err := metrics.Ensure(reg, "dispatch_lock_contention_total", metrics.NewLockContentionTotal())
	if err != nil {
		return metricsOut{}, err
	}
	fired, err := metrics.Ensure(reg, "dispatch_timer_fired_total", metrics.NewTimerFiredTotal())
	if err != nil {
		return metricsOut{}, err
	}
	outcomes, err := metrics.Ensure(reg, "dispatch_outcomes_total", metrics.NewOutcomesTotal())
	if err != nil {
		return metricsOut{}, err
	}

	return metricsOut{
		RateLimitExceededTotal: rl,
		TxRetriesTotal:         tx,
		LockContentionTotal:    lock,
		TimerFiredTotal:        fired,
		Outcomes:               metrics.NewOutcomes(outcomes),
		Gatherer:               prometheus.DefaultGatherer,
	}, nil
}

func registerMetrics(container *dig.Container) error {
	return provideAll(container, provideMetrics)
}
