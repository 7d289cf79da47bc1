// Package graph — metrics.go registers the Prometheus metrics shared by all
// compiled graphs in a process.
package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. A single instance is
// shared across compiled graphs, partitioned by the graph label; tests inject
// a fresh prometheus.Registry to stay hermetic.
type Metrics struct {
	// nodeSteps counts node executions, partitioned by graph and node name.
	nodeSteps *prometheus.CounterVec

	// nodeDuration records wall-clock node execution time. Node time is
	// dominated by external calls (model, search, store), so buckets reach
	// into the minutes.
	nodeDuration *prometheus.HistogramVec

	// runsTotal counts completed runs by outcome: "ok", "error",
	// "cap_exceeded", "canceled", or "abandoned".
	runsTotal *prometheus.CounterVec
}

// NewMetrics registers the engine metrics against reg and returns them.
// promauto.With(reg) registers into the provided registry rather than the
// global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		nodeSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperflow",
			Subsystem: "graph",
			Name:      "node_steps_total",
			Help:      "Total node executions, partitioned by graph and node.",
		}, []string{"graph", "node"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperflow",
			Subsystem: "graph",
			Name:      "node_duration_seconds",
			Help:      "Wall-clock duration of node executions.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"graph", "node"}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperflow",
			Subsystem: "graph",
			Name:      "runs_total",
			Help:      "Total completed runs, partitioned by graph and outcome.",
		}, []string{"graph", "outcome"}),
	}
}
