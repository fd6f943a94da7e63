package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "avroconvert"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Conversion metrics
	Files              *prometheus.CounterVec
	Records            *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	InflightTasks      prometheus.Gauge

	// Source metrics
	SourceFiles *prometheus.GaugeVec
	SourceBytes *prometheus.CounterVec

	// Storage metrics
	FilesWritten      *prometheus.CounterVec
	FileWriteDuration *prometheus.HistogramVec
	FileSize          *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Conversion metrics
		Files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Total number of input files processed",
			},
			[]string{"source", "format", "status"},
		),
		Records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Total number of records converted",
			},
			[]string{"format"},
		),
		ConversionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "conversion_duration_seconds",
				Help:      "Duration of single file conversions including decoding",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		InflightTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_tasks",
				Help:      "Number of conversion tasks currently running",
			},
		),

		// Source metrics
		SourceFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_files",
				Help:      "Number of matching input files found by the last listing",
			},
			[]string{"source"},
		),
		SourceBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_bytes_total",
				Help:      "Total number of input bytes downloaded",
			},
			[]string{"source"},
		),

		// Storage metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_files_total",
				Help:      "Total number of output files written",
			},
			[]string{"format", "status"},
		),
		FileWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "write_duration_seconds",
				Help:      "Duration of output file writes including encoding",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_file_size_bytes",
				Help:      "Size of output files written",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncFiles increments the processed files counter.
func (m *Metrics) IncFiles(source, format, status string) {
	m.Files.WithLabelValues(source, format, status).Inc()
}

// AddRecords adds to the converted records counter.
func (m *Metrics) AddRecords(format string, n int) {
	m.Records.WithLabelValues(format).Add(float64(n))
}

// ObserveConversionDuration observes a single file conversion.
func (m *Metrics) ObserveConversionDuration(format string, duration float64) {
	m.ConversionDuration.WithLabelValues(format).Observe(duration)
}

// IncInflight increments the running tasks gauge.
func (m *Metrics) IncInflight() {
	m.InflightTasks.Inc()
}

// DecInflight decrements the running tasks gauge.
func (m *Metrics) DecInflight() {
	m.InflightTasks.Dec()
}

// SetSourceFiles sets the matching input files gauge.
func (m *Metrics) SetSourceFiles(source string, count int) {
	m.SourceFiles.WithLabelValues(source).Set(float64(count))
}

// AddSourceBytes adds to the downloaded bytes counter.
func (m *Metrics) AddSourceBytes(source string, n int) {
	m.SourceBytes.WithLabelValues(source).Add(float64(n))
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(format string, status string) {
	m.FilesWritten.WithLabelValues(format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(format string, size float64) {
	m.FileSize.WithLabelValues(format).Observe(size)
}

// ObserveWriteDuration observes file write duration.
func (m *Metrics) ObserveWriteDuration(format string, duration float64) {
	m.FileWriteDuration.WithLabelValues(format).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for pickup by a node exporter textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
