package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveRuns counts finished solver runs by outcome status
	SolveRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wave_solve_runs_total", Help: "Solver runs by final status."},
		[]string{"status"},
	)
	// SolveDuration records wall time spent inside the optimizer
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wave_solve_duration_seconds", Help: "Solver wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300}},
		[]string{"stop_reason"},
	)
	// SolveIterations records ILS iterations per run
	SolveIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wave_solve_iterations", Help: "ILS iterations per run.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
	)
	// BestObjective is the objective of the most recent feasible run per tenant
	BestObjective = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "wave_best_objective", Help: "Objective of the latest feasible wave per tenant."},
		[]string{"tenant"},
	)
	// RunsInFlight is the number of solver runs currently executing
	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "wave_runs_in_flight", Help: "Solver runs currently executing."},
	)

	// CallbackDeliveries counts callback delivery outcomes by event type and status
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_deliveries_total", Help: "Run callback deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// CallbackLatency tracks callback delivery latencies in milliseconds
	CallbackLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "callback_delivery_latency_ms", Help: "Run callback delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(SolveRuns, SolveDuration, SolveIterations, BestObjective, RunsInFlight)
		Registry.MustRegister(CallbackDeliveries, CallbackLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
