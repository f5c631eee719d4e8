package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the dispatcher.
	Registry = prometheus.NewRegistry()

	// Assignments counts assignment attempts by policy and outcome.
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_assignments_total", Help: "Assignment attempts by policy and outcome."},
		[]string{"policy", "outcome"},
	)
	// SolverDuration records route solver wall time in seconds per solver.
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dispatch_solver_duration_seconds", Help: "Route solver wall time in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60}},
		[]string{"solver"},
	)
	// RouteDistance tracks planned route distances in kilometers.
	RouteDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dispatch_route_distance_km", Help: "Planned route distance in kilometers.", Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500}},
	)
	// BatchRuns counts daily optimization runs by outcome.
	BatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_batch_runs_total", Help: "Daily optimization runs by outcome."},
		[]string{"outcome"},
	)
	// DistanceCacheHits counts distance cache lookups by result.
	DistanceCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_distance_cache_total", Help: "Distance cache lookups by result."},
		[]string{"result"},
	)
)

// RegisterDefault registers collectors to the dispatcher registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(Assignments)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(RouteDistance)
		Registry.MustRegister(BatchRuns)
		Registry.MustRegister(DistanceCacheHits)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
