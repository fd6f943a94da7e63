package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums every series of the named metric family.
func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_IncFiles(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncFiles("fs", "csv", "success")
	metrics.IncFiles("fs", "csv", "success")
	metrics.IncFiles("s3", "parquet", "failed")

	if got := counterValue(t, registry, "avroconvert_files_total"); got != 3 {
		t.Errorf("avroconvert_files_total = %v, want 3", got)
	}
}

func TestMetrics_AddRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.AddRecords("json", 10)
	metrics.AddRecords("json", 5)

	if got := counterValue(t, registry, "avroconvert_records_total"); got != 15 {
		t.Errorf("avroconvert_records_total = %v, want 15", got)
	}
}

func TestMetrics_Inflight(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncInflight()
	metrics.IncInflight()
	metrics.DecInflight()

	if got := counterValue(t, registry, "avroconvert_inflight_tasks"); got != 1 {
		t.Errorf("avroconvert_inflight_tasks = %v, want 1", got)
	}
}

func TestMetrics_Source(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SetSourceFiles("gs", 4)
	metrics.SetSourceFiles("gs", 2)
	metrics.AddSourceBytes("gs", 1024)

	if got := counterValue(t, registry, "avroconvert_source_files"); got != 2 {
		t.Errorf("avroconvert_source_files = %v, want 2", got)
	}
	if got := counterValue(t, registry, "avroconvert_source_bytes_total"); got != 1024 {
		t.Errorf("avroconvert_source_bytes_total = %v, want 1024", got)
	}
}

func TestMetrics_Storage(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncFilesWritten("parquet", "success")
	metrics.ObserveFileSize("parquet", 2048.0)
	metrics.ObserveWriteDuration("parquet", 0.5)
	metrics.ObserveConversionDuration("parquet", 0.7)
	metrics.IncStorageErrors("file", "create")
	metrics.IncStorageErrors("s3", "list")

	tests := []struct {
		name string
		want float64
	}{
		{"avroconvert_output_files_total", 1},
		{"avroconvert_output_file_size_bytes", 1},
		{"avroconvert_write_duration_seconds", 1},
		{"avroconvert_conversion_duration_seconds", 1},
		{"avroconvert_storage_errors_total", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, registry, tt.name); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetrics_MultipleRegistries(t *testing.T) {
	// Each registry is independent, so building twice must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.IncFiles("fs", "json", "success")

	path := filepath.Join(t.TempDir(), "avroconvert.prom")
	if err := WriteTextfile(path, registry); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `avroconvert_files_total{format="json",source="fs",status="success"} 1`) {
		t.Errorf("textfile missing files counter:\n%s", data)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	path := filepath.Join(t.TempDir(), "missing", "avroconvert.prom")
	if err := WriteTextfile(path, registry); err == nil {
		t.Error("expected error for missing directory")
	}
}
