package guided

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/mend/repair"
	"github.com/teranos/mend/types"
)

const namespace = "mend"

// Metrics are the session counters. Register them once per registry.
type Metrics struct {
	Interactions    prometheus.Counter
	FixesApplied    prometheus.Counter
	FixesRejected   prometheus.Counter
	FixesSkipped    prometheus.Counter
	SolverFailures  prometheus.Counter
	PopulateSeconds prometheus.Histogram
	SessionSeconds  prometheus.Histogram
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Interactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Oracle decisions requested during guided repair.",
		}),
		FixesApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_applied_total",
			Help:      "Fixes accepted and written to the source table.",
		}),
		FixesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_rejected_total",
			Help:      "Fixes rejected by the oracle.",
		}),
		FixesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_skipped_total",
			Help:      "Fixes skipped because their cell was already updated.",
		}),
		SolverFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_failures_total",
			Help:      "Cells for which no repair could be solved.",
		}),
		PopulateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_populate_seconds",
			Help:      "Time to populate one repair group.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SessionSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_seconds",
			Help:      "Wall time of a guided repair session.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

// Hooks feeds repair group population into the metrics.
func (m *Metrics) Hooks() repair.Hooks {
	return repair.Hooks{
		SolverFailure: func(types.Column, error) { m.SolverFailures.Inc() },
		Populated: func(_ types.Column, elapsed time.Duration, _ int) {
			m.PopulateSeconds.Observe(elapsed.Seconds())
		},
	}
}
