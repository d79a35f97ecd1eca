// Package metrics defines the API server's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crowdrank/crowdrank-backend/pkg/metrics"
)

const subsystem = "apiserver"

// Metrics holds every collector the API server records. All collectors live
// in a private registry so parallel test servers never collide.
type Metrics struct {
	collector *metrics.Collector

	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      *prometheus.GaugeVec
	HealthChecksTotal   *prometheus.CounterVec

	// Ledger store operations issued by handlers
	StoreOperationsTotal     *prometheus.CounterVec
	StoreOperationDuration   *prometheus.HistogramVec
	SlowStoreOperationsTotal prometheus.Counter

	// Domain counters
	TasksCreatedTotal       prometheus.Counter
	SubmissionsCreatedTotal prometheus.Counter
	WithdrawalsTotal        *prometheus.CounterVec
	WebsocketClientsActive  prometheus.Gauge
}

// New builds the API server metrics on top of a shared collector.
func New(collector *metrics.Collector) *Metrics {
	builder := metrics.NewMetricBuilder(collector, subsystem)

	return &Metrics{
		collector: collector,

		HTTPRequestsTotal: builder.CounterVec(
			"http_requests_total",
			"Total HTTP requests processed",
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: builder.HistogramVec(
			"http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "endpoint"},
			prometheus.DefBuckets,
		),
		ActiveRequests: builder.GaugeVec(
			"active_requests",
			"Currently active HTTP requests",
			[]string{"endpoint"},
		),
		HealthChecksTotal: builder.CounterVec(
			"health_checks_total",
			"Total health check requests",
			[]string{"status"},
		),

		StoreOperationsTotal: builder.CounterVec(
			"store_operations_total",
			"Total ledger store operations performed",
			[]string{"operation", "table", "status"},
		),
		StoreOperationDuration: builder.HistogramVec(
			"store_operation_duration_seconds",
			"Ledger store operation duration in seconds",
			[]string{"operation", "table"},
			[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		),
		SlowStoreOperationsTotal: builder.Counter(
			"store_slow_operations_total",
			"Store operations that exceeded one second",
		),

		TasksCreatedTotal: builder.Counter(
			"tasks_created_total",
			"Tasks accepted through the API",
		),
		SubmissionsCreatedTotal: builder.Counter(
			"submissions_created_total",
			"Review submissions accepted through the API",
		),
		WithdrawalsTotal: builder.CounterVec(
			"withdrawals_total",
			"Withdrawal requests by terminal status",
			[]string{"status"},
		),
		WebsocketClientsActive: builder.Gauge(
			"websocket_clients_active",
			"Currently connected websocket clients",
		),
	}
}

// NewDefault builds metrics on a fresh collector, for tests and tools that
// do not share one.
func NewDefault() *Metrics {
	return New(metrics.NewCollector(subsystem))
}

// TrackStoreOperation times one store call. The returned func records the
// outcome.
func (m *Metrics) TrackStoreOperation(operation, table string) func(error) {
	start := time.Now()
	return func(err error) {
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil {
			status = "error"
		}

		m.StoreOperationsTotal.WithLabelValues(operation, table, status).Inc()
		m.StoreOperationDuration.WithLabelValues(operation, table).Observe(duration)

		if duration > 1.0 {
			m.SlowStoreOperationsTotal.Inc()
		}
	}
}

// Handler exposes the collector's registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return m.collector.Handler()
}

// Start begins background collection of uptime and system metrics.
func (m *Metrics) Start() {
	m.collector.Start()
}

// Stop halts background collection.
func (m *Metrics) Stop() {
	m.collector.Stop()
}
