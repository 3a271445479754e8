package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOutcomes_Observe(t *testing.T) {
	t.Parallel()

	vec := NewOutcomesTotal()
	o := NewOutcomes(vec)

	o.Observe("accept", "won")
	o.Observe("accept", "won")
	o.Observe("accept", "already_taken")

	require.Equal(t, 2.0, testutil.ToFloat64(vec.WithLabelValues("accept", "won")))
	require.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("accept", "already_taken")))
}

func TestOutcomes_NilIsNoop(t *testing.T) {
	t.Parallel()

	var o *Outcomes
	require.NotPanics(t, func() { o.Observe("cancel", "won") })
	require.NotPanics(t, func() { NewOutcomes(nil).Observe("cancel", "won") })
}

func TestEnsure_ReturnsExistingCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := Ensure(reg, "dispatch_tx_retries_total", NewTxRetriesTotal())
	require.NoError(t, err)

	second, err := Ensure(reg, "dispatch_tx_retries_total", NewTxRetriesTotal())
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestEnsure_ConflictingCollectorFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_timer_fired_total",
		Help: "other help",
	})))

	_, err := Ensure(reg, "dispatch_timer_fired_total", NewTimerFiredTotal())
	require.Error(t, err)
	require.Contains(t, err.Error(), "register dispatch_timer_fired_total")
}
