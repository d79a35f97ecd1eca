package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_DefaultOptions_ExposesCommonMetrics(t *testing.T) {
	collector := NewCollector("apiserver")
	collector.Start()
	defer collector.Stop()

	collector.Common().UpdateUptime()
	collector.Common().UpdateSystemMetrics()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "crowdrank_apiserver_uptime_seconds")
	assert.Contains(t, body, "crowdrank_apiserver_goroutines_active")
}

func TestNewCollector_WithNamespaceOption_OverridesDefault(t *testing.T) {
	collector := NewCollector("sweeper", WithNamespace("custom"))
	collector.Start()
	defer collector.Stop()

	collector.Common().UpdateUptime()

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Contains(t, rec.Body.String(), "custom_sweeper_uptime_seconds")
}

func TestNewCollector_CommonMetricsDisabled_HasNoCommon(t *testing.T) {
	collector := NewCollector("apiserver", WithCommonMetrics(false))
	collector.Start()
	defer collector.Stop()

	assert.Nil(t, collector.Common())
}

func TestCollector_MustRegister_CustomMetricAppearsInOutput(t *testing.T) {
	collector := NewCollector("apiserver", WithCommonMetrics(false))
	defer collector.Stop()

	counter := NewCounter("crowdrank", "apiserver", "tasks_settled_total", "Total settled tasks")
	collector.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "crowdrank_apiserver_tasks_settled_total 1")
}

func TestCollector_Register_DuplicateReturnsError(t *testing.T) {
	collector := NewCollector("apiserver", WithCommonMetrics(false))
	defer collector.Stop()

	counter := NewCounter("crowdrank", "apiserver", "dup_total", "dup")
	require.NoError(t, collector.Register(counter))
	assert.Error(t, collector.Register(counter))
}

func TestMetricBuilder_RegistersAllMetricKinds(t *testing.T) {
	collector := NewCollector("sweeper", WithCommonMetrics(false))
	defer collector.Stop()

	builder := NewMetricBuilder(collector, "sweeper")
	builder.Counter("sweep_runs_total", "Total sweep runs").Inc()
	builder.CounterVec("settlements_total", "Settlements by status", []string{"status"}).WithLabelValues("ok").Inc()
	builder.Gauge("open_tasks", "Open tasks").Set(3)
	builder.Histogram("sweep_duration_seconds", "Sweep duration", prometheus.DefBuckets).Observe(0.2)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"crowdrank_sweeper_sweep_runs_total",
		`crowdrank_sweeper_settlements_total{status="ok"}`,
		"crowdrank_sweeper_open_tasks 3",
		"crowdrank_sweeper_sweep_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollector_StartStop_TerminatesBackgroundLoops(t *testing.T) {
	collector := NewCollector("apiserver",
		WithUptimeInterval(5*time.Millisecond),
		WithSystemMetricsInterval(5*time.Millisecond),
	)
	collector.Start()

	time.Sleep(20 * time.Millisecond)
	collector.Stop()
}
