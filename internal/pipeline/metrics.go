package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes recorded on the items counter.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeWarning   = "warning"
	OutcomeError     = "error"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	ItemsTotal  *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which suits tests and one-shot CLI runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "healthwire",
				Name:      "pipeline_runs_total",
				Help:      "Total number of pipeline runs by pipeline and status",
			},
			[]string{"pipeline", "status"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "healthwire",
				Name:      "pipeline_items_total",
				Help:      "Total number of work items by pipeline and outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "healthwire",
				Name:      "pipeline_run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"pipeline"},
		),
	}
}

// RecordRun records a finished or refused run.
func (m *Metrics) RecordRun(pipeline, status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(pipeline, status).Inc()
	if duration > 0 {
		m.RunDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
	}
}

// RecordItem counts one work item outcome.
func (m *Metrics) RecordItem(pipeline, outcome string) {
	m.ItemsTotal.WithLabelValues(pipeline, outcome).Inc()
}
