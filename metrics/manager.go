// Package metrics exposes prometheus instruments for the refresh pipeline
// and the dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StageFetch   = "fetch"
	StageCompute = "compute"

	StatusOK    = "ok"
	StatusError = "error"
)

// Manager holds every instrument the tools report.
type Manager struct {
	// counters
	CounterRuns     *prometheus.CounterVec
	CounterFetched  prometheus.Counter
	CounterAdded    prometheus.Counter
	CounterSamples  prometheus.Counter
	CounterRequests *prometheus.CounterVec

	// gauges
	GaugeDerivedRows  prometheus.Gauge
	GaugeExcludedRows prometheus.Gauge
	GaugeLastSuccess  prometheus.Gauge

	// histograms
	HistStageDuration *prometheus.HistogramVec
}

// NewTestManager registers on a private registry.
func NewTestManager() *Manager {
	return NewManager("training_report", "test", prometheus.NewRegistry())
}

// NewTestManagerAndRegistry also returns the registry for gathering.
func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("training_report", "test", reg), reg
}

// NewManager registers all instruments on reg under namespace and subsystem.
func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by outcome",
		}, []string{"stage", "status"}),
		CounterFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "activities_fetched_total",
			Help:      "Activities returned by the provider",
		}),
		CounterAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "activities_added_total",
			Help:      "Activities appended to the raw table",
		}),
		CounterSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_samples_added_total",
			Help:      "Per-sample stream rows appended to the sample table",
		}),
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Dashboard requests by route and status code",
		}, []string{"route", "code"}),
		GaugeDerivedRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "derived_rows",
			Help:      "Rows in the last derived table",
		}),
		GaugeExcludedRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "excluded_rows",
			Help:      "Raw rows excluded by the last compute",
		}),
		GaugeLastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful refresh",
		}),
		HistStageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
	}
}

// ObserveStage records one stage execution.
func (m *Manager) ObserveStage(stage string, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.CounterRuns.WithLabelValues(stage, status).Inc()
	m.HistStageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

// MarkSuccess records the time of the last successful refresh. Nil-safe.
func (m *Manager) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.GaugeLastSuccess.Set(float64(at.Unix()))
}
