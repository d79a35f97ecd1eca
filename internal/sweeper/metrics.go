package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/crowdrank/crowdrank-backend/pkg/metrics"
)

const metricsSubsystem = "sweeper"

// Metrics counts sweep and housekeeping activity.
type Metrics struct {
	collector *metrics.Collector

	SweepsTotal                 prometheus.Counter
	TasksSettledTotal           prometheus.Counter
	SettleFailuresTotal         prometheus.Counter
	LockContentionTotal         prometheus.Counter
	HousekeepingRunsTotal       prometheus.Counter
	StaleTasksReleasedTotal     prometheus.Counter
	StaleWithdrawalsFailedTotal prometheus.Counter
}

// NewMetrics registers the sweeper metrics on the collector.
func NewMetrics(collector *metrics.Collector) *Metrics {
	builder := metrics.NewMetricBuilder(collector, metricsSubsystem)

	return &Metrics{
		collector: collector,
		SweepsTotal: builder.Counter(
			"sweeps_total",
			"Number of settlement sweeps run",
		),
		TasksSettledTotal: builder.Counter(
			"tasks_settled_total",
			"Number of tasks settled by the sweeper",
		),
		SettleFailuresTotal: builder.Counter(
			"settle_failures_total",
			"Number of settlement attempts that failed",
		),
		LockContentionTotal: builder.Counter(
			"lock_contention_total",
			"Number of tasks skipped because another replica held the lock",
		),
		HousekeepingRunsTotal: builder.Counter(
			"housekeeping_runs_total",
			"Number of housekeeping passes run",
		),
		StaleTasksReleasedTotal: builder.Counter(
			"stale_tasks_released_total",
			"Number of stale settling claims released back to open",
		),
		StaleWithdrawalsFailedTotal: builder.Counter(
			"stale_withdrawals_failed_total",
			"Number of stuck processing withdrawals failed and refunded",
		),
	}
}

// NewDefaultMetrics builds metrics on a private collector, for tests and
// single-process runs.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(metrics.NewCollector(metricsSubsystem))
}

// Collector exposes the underlying collector for the metrics endpoint.
func (m *Metrics) Collector() *metrics.Collector {
	return m.collector
}
