// Package metrics holds the Prometheus instruments for pipeline runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "sonarfix"

// Metrics is a private registry with the pipeline instruments.
type Metrics struct {
	Registry         *prometheus.Registry
	RunsTotal        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	FindingsSelected prometheus.Counter
	EffortMinutes    prometheus.Counter
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage execution time in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		FindingsSelected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_selected_total",
			Help:      "Findings selected for remediation.",
		}),
		EffortMinutes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effort_minutes_total",
			Help:      "Remediation effort minutes recorded.",
		}),
	}
}

// WithProcessCollectors adds Go runtime and process collectors, for the
// long-running status server.
func (m *Metrics) WithProcessCollectors() *Metrics {
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a finished run.
func (m *Metrics) RunFinished(outcome string) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// FindingSelected counts a selected finding.
func (m *Metrics) FindingSelected() {
	m.FindingsSelected.Inc()
}

// EffortRecorded adds recorded effort minutes.
func (m *Metrics) EffortRecorded(minutes int) {
	if minutes > 0 {
		m.EffortMinutes.Add(float64(minutes))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Push sends the registry to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
