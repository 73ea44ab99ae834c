package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpsTotal counts ledger operations by type and outcome.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Total ledger operations by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// OpDuration observes operation latency by type.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(OpsTotal, OpDuration)
}

// observeOp increments the operation counter and returns a function to
// observe duration and record the final outcome.
func observeOp(opType string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		OpsTotal.WithLabelValues(opType, outcome).Inc()
		OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
