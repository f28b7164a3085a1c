// Package metrics exposes the recognition cycle counters. Nothing listens on
// a port: the registry is dumped to a node-exporter textfile at shutdown.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes used as the status label.
const (
	StatusExported          = "exported"
	StatusRecognitionFailed = "recognition_failed"
	StatusExportFailed      = "export_failed"
)

// Metrics groups the collectors of one process run.
type Metrics struct {
	registry *prometheus.Registry

	cycles              *prometheus.CounterVec
	recognitionDuration *prometheus.HistogramVec
	engineLoads         *prometheus.CounterVec
	linesPerCycle       prometheus.Histogram
	exportFailures      prometheus.Counter
	sharpness           prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labelocr_cycles_total",
				Help: "Total number of processing cycles by outcome",
			},
			[]string{"status"},
		),
		recognitionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labelocr_recognition_duration_seconds",
				Help:    "Recognition duration per language in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"language"},
		),
		engineLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labelocr_engine_loads_total",
				Help: "Number of recognition contexts constructed",
			},
			[]string{"language"},
		),
		linesPerCycle: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "labelocr_lines_per_cycle",
				Help:    "Number of text lines in each exported result",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		exportFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "labelocr_export_failures_total",
				Help: "Number of failed exports",
			},
		),
		sharpness: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "labelocr_last_frame_sharpness",
				Help: "Laplacian variance of the most recently processed frame",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordCycle counts a finished cycle.
func (m *Metrics) RecordCycle(status string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(status).Inc()
}

// RecordRecognition observes the time spent in one language context.
func (m *Metrics) RecordRecognition(lang string, d time.Duration) {
	if m == nil {
		return
	}
	m.recognitionDuration.WithLabelValues(lang).Observe(d.Seconds())
}

// RecordEngineLoad counts a context construction.
func (m *Metrics) RecordEngineLoad(lang string) {
	if m == nil {
		return
	}
	m.engineLoads.WithLabelValues(lang).Inc()
}

// RecordResult observes an exported result.
func (m *Metrics) RecordResult(lines int, sharpness float64) {
	if m == nil {
		return
	}
	m.linesPerCycle.Observe(float64(lines))
	m.sharpness.Set(sharpness)
}

// RecordExportFailure counts a failed export.
func (m *Metrics) RecordExportFailure() {
	if m == nil {
		return
	}
	m.exportFailures.Inc()
}

// WriteTextfile writes the registry in the text exposition format. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
