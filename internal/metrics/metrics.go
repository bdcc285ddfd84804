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

	// OptimizerRuns counts optimization runs by outcome (ok, partial, invalid, cancelled, error)
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by outcome."},
		[]string{"outcome"},
	)
	// OptimizerDuration records wall time of a run in seconds
	OptimizerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60}},
	)
	OptimizerIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimizer_search_iterations", Help: "Search iterations per run.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
	)
	OptimizerUnassigned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_unassigned_customers_total", Help: "Customers left unassigned across runs."},
	)

	// SinkFailures counts result sink failures by sink name
	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sink_failures_total", Help: "Result sink failures by sink."},
		[]string{"sink"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(OptimizerRuns, OptimizerDuration, OptimizerIterations, OptimizerUnassigned)
		Registry.MustRegister(SinkFailures)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
