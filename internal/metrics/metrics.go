package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewTxRetriesTotal returns a counter for serializable transactions re-run after a conflict
func NewTxRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_tx_retries_total",
		Help: "Total number of transaction retries after serialization conflicts",
	})
}

// NewLockContentionTotal returns a counter for lease acquisitions that waited on another holder
func NewLockContentionTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_lock_contention_total",
		Help: "Total number of lease acquisition attempts that found the lease held",
	})
}

// NewTimerFiredTotal returns a counter for expiry timers that moved a broadcast to EXPIRED
func NewTimerFiredTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_timer_fired_total",
		Help: "Total number of broadcasts expired by the timer",
	})
}

// NewOutcomesTotal returns a counter vec labelled by operation and outcome
func NewOutcomesTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_outcomes_total",
		Help: "Outcomes of dispatch operations",
	}, []string{"operation", "outcome"})
}

// Outcomes records the result of create, accept and cancel calls.
type Outcomes struct {
	vec *prometheus.CounterVec
}

// NewOutcomes wraps vec. A nil vec records nothing.
func NewOutcomes(vec *prometheus.CounterVec) *Outcomes {
	return &Outcomes{vec: vec}
}

// Observe increments the operation/outcome pair.
func (o *Outcomes) Observe(operation, outcome string) {
	if o == nil || o.vec == nil {
		return
	}
	o.vec.WithLabelValues(operation, outcome).Inc()
}

// Ensure registers c on reg. When an equal collector is already registered it returns that
// one instead, so a second container in the same process shares the series.
func Ensure[T prometheus.Collector](reg prometheus.Registerer, name string, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}
