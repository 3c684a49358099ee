package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("success", 2*time.Second)
	m.ObserveRun("success", time.Second)
	m.ObserveRun("failure", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))

	m.PollError("runs")
	m.PollError("runs")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pollErrors.WithLabelValues("runs")))

	m.ModelTask("parsed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelTasks.WithLabelValues("parsed")))

	m.SetStatus("RUNNING_SIMULATION")
	m.SetStatus("IDLE")
	assert.Equal(t, 1, testutil.CollectAndCount(m.status))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.status.WithLabelValues("IDLE")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRun("success", time.Second)
	m.PollError("runs")
	m.ModelTask("failed")
	m.SetStatus("IDLE")
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.ObserveRun("failure", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `legion_connector_runs_total{status="failure"} 1`))
}
