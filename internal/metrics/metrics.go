// Package metrics holds the Prometheus collectors for the dispatch control
// plane. One registry instance is wired through the container; /metrics
// serves the standard promhttp handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for dispatch
type Registry struct {
	reg *prometheus.Registry

	// OptimizerRuns counts daily runs by serving path: optimal, greedy, failed
	OptimizerRuns         *prometheus.CounterVec
	OptimizerSolveSeconds prometheus.Histogram
	AssignmentsCreated    prometheus.Counter
	HealthAlerts          *prometheus.CounterVec
	WSConnections         prometheus.Gauge
	PushSends             *prometheus.CounterVec
	CacheRequests         *prometheus.CounterVec
}

// New creates the metric registry with all dispatch collectors registered
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		OptimizerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_optimizer_runs_total",
			Help: "Daily assignment runs by serving path",
		}, []string{"path"}),
		OptimizerSolveSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_optimizer_solve_seconds",
			Help:    "Wall-clock duration of the distribution step",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120, 300},
		}),
		AssignmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_assignments_created_total",
			Help: "Assignment rows persisted by the daily pipeline",
		}),
		HealthAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_health_alerts_total",
			Help: "Break alerts dispatched by the health monitor, by severity",
		}, []string{"severity"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_ws_connections",
			Help: "Live realtime connections",
		}),
		PushSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_push_sends_total",
			Help: "Push dispatcher attempts by result",
		}, []string{"result"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_cache_requests_total",
			Help: "Cache lookups by backend and result",
		}, []string{"backend", "result"}),
	}
}

// Handler returns the /metrics HTTP handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
