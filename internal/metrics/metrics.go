// SPDX-License-Identifier: EPL-2.0

// Package metrics provides Prometheus metrics for recording imports.
// All metrics use the "uwloc" namespace and live on a registry owned by the
// Metrics value, so a process can serve them over HTTP or dump them to a
// node-exporter textfile.
//
//   - Rate:     import_recordings_total, import_samples_total
//   - Errors:   import_failures_total{reason}, import_skipped_total
//   - Duration: import_duration_seconds
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uwloc"

// Metrics is safe to use through a nil pointer, in which case nothing is
// recorded.
type Metrics struct {
	reg *prometheus.Registry

	imported       prometheus.Counter
	skipped        prometheus.Counter
	failed         *prometheus.CounterVec
	samplesWritten prometheus.Counter
	importDuration prometheus.Histogram
	devices        prometheus.Gauge
}

// New creates the import metrics plus the Go runtime and process collectors
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		imported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "recordings_total",
			Help:      "Recordings written to the sample store.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "skipped_total",
			Help:      "Recordings skipped because they carry no device id.",
		}),
		// reason: decode | timestamp | sample_rate | before_start | capacity | units | storage
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "failures_total",
			Help:      "Recordings that could not be imported, by reason.",
		}, []string{"reason"}),
		samplesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "samples_total",
			Help:      "Samples written to the sample store.",
		}),
		importDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Time to decode and write one recording.",
			// 10ms to ~80s
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices registered in the database.",
		}),
	}
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WriteTextfile writes the registry to path for the node-exporter textfile
// collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}

	return prometheus.WriteToTextfile(path, m.reg)
}

// ObserveImport records one imported recording.
func (m *Metrics) ObserveImport(d time.Duration, samples int) {
	if m == nil {
		return
	}

	m.imported.Inc()
	m.samplesWritten.Add(float64(samples))
	m.importDuration.Observe(d.Seconds())
}

// RecordSkip counts a recording without a device id.
func (m *Metrics) RecordSkip() {
	if m == nil {
		return
	}

	m.skipped.Inc()
}

// RecordFailure counts a failed recording under reason.
func (m *Metrics) RecordFailure(reason string) {
	if m == nil {
		return
	}

	m.failed.WithLabelValues(reason).Inc()
}

// SetDevices sets the registered device gauge.
func (m *Metrics) SetDevices(n int64) {
	if m == nil {
		return
	}

	m.devices.Set(float64(n))
}
