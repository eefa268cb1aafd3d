// Package metrics exposes the routing-core business metrics (spec §9
// "Observability"), following the promauto wiring of pkg/metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the routing-core Prometheus collectors.
type Metrics struct {
	OptimizeTotal        *prometheus.CounterVec
	OptimizeDuration     *prometheus.HistogramVec
	SolveInfeasibleTotal *prometheus.CounterVec
	WorkloadVariance     *prometheus.GaugeVec
	TempAssignmentsTotal *prometheus.CounterVec
	RouteStopsGenerated  *prometheus.HistogramVec
}

var defaultMetrics *Metrics

// Init registers the routing-core collectors under namespace/"routing".
func Init(namespace string) *Metrics {
	m := &Metrics{
		OptimizeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "optimize_total",
				Help:      "Total number of optimize calls by mode and status",
			},
			[]string{"mode", "status"},
		),

		OptimizeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "optimize_duration_seconds",
				Help:      "Duration of optimize calls",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),

		SolveInfeasibleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "solve_infeasible_total",
				Help:      "Total number of optimize calls that returned infeasible",
			},
			[]string{"mode"},
		),

		WorkloadVariance: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "workload_variance",
				Help:      "Last computed per-tech workload variance for a tenant",
			},
			[]string{"tenant_id"},
		),

		TempAssignmentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "temp_assignments_total",
				Help:      "Total number of SetTempAssignment calls by status",
			},
			[]string{"status"},
		),

		RouteStopsGenerated: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "route_stops_generated",
				Help:      "Number of stops in a single generated route",
				Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 50},
			},
			[]string{"mode"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the process-wide routing-core metrics, initializing with
// default namespace "logistics" if Init was never called.
func Get() *Metrics {
	if defaultMetrics == nil {
		return Init("logistics")
	}
	return defaultMetrics
}

// RecordOptimize records one Optimize call outcome.
func (m *Metrics) RecordOptimize(mode string, success bool, infeasible bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.OptimizeTotal.WithLabelValues(mode, status).Inc()
	m.OptimizeDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if infeasible {
		m.SolveInfeasibleTotal.WithLabelValues(mode).Inc()
	}
}

// RecordTempAssignment records one SetTempAssignment call outcome.
func (m *Metrics) RecordTempAssignment(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TempAssignmentsTotal.WithLabelValues(status).Inc()
}

// RecordRouteStops records the stop count of one generated route.
func (m *Metrics) RecordRouteStops(mode string, stops int) {
	m.RouteStopsGenerated.WithLabelValues(mode).Observe(float64(stops))
}

// SetWorkloadVariance records the most recent cross-day workload variance.
func (m *Metrics) SetWorkloadVariance(tenantID string, variance float64) {
	m.WorkloadVariance.WithLabelValues(tenantID).Set(variance)
}
