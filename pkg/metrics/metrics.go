// Package metrics exposes connector activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legion_connector"

// Metrics holds the connector collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	pollErrors  *prometheus.CounterVec
	modelTasks  *prometheus.CounterVec
	status      *prometheus.GaugeVec
	gatherer    prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Simulation runs processed, by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time from picking up a run to its terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Errors returned by an iteration of a polling loop.",
		}, []string{"loop"}),
		modelTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tasks_total",
			Help:      "Model download and parse tasks, by result.",
		}, []string{"result"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connector_status",
			Help:      "1 for the status the connector last published.",
		}, []string{"status"}),
		gatherer: reg,
	}

	reg.MustRegister(m.runs, m.runDuration, m.pollErrors, m.modelTasks, m.status)
	return m
}

// ObserveRun records a run that reached status after d.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// PollError counts a failed iteration of loop.
func (m *Metrics) PollError(loop string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(loop).Inc()
}

// ModelTask counts a finished model task.
func (m *Metrics) ModelTask(result string) {
	if m == nil {
		return
	}
	m.modelTasks.WithLabelValues(result).Inc()
}

// SetStatus marks status as the current connector status.
func (m *Metrics) SetStatus(status string) {
	if m == nil {
		return
	}
	m.status.Reset()
	m.status.WithLabelValues(status).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
