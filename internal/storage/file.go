// Package storage implements storage writer implementations.
package storage

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/avroconvert/internal/encoder"
	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
	"github.com/jittakal/avroconvert/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(format string, status string)
	ObserveFileSize(format string, size float64)
	ObserveWriteDuration(format string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for the local output directory.
// Each Write owns its output file, so concurrent writes need no locking;
// directory creation relies on os.MkdirAll tolerating races.
type FileWriter struct {
	basePath       string
	router         storage.Router
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewFileWriter creates the output root and a writer for the given format.
func NewFileWriter(
	config FileConfig,
	format record.FileFormat,
	opts encoder.Options,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	encoderFactory := encoder.NewFactory(format, opts)

	// Validate encoder can be created
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, &apperrors.ConfigurationError{Field: "format", Reason: err.Error()}
	}

	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, &apperrors.WriteError{Operation: "mkdir", Path: config.BasePath, Err: err}
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"header", opts.Header,
		"compression", opts.Compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		router:         NewRouter(config.BasePath, format),
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Route returns the output path Write would use for filename.
func (w *FileWriter) Route(filename string) string {
	return w.router.Route(filename)
}

// Write encodes one batch into the output file derived from filename.
// A failed write leaves any partial output in place.
func (w *FileWriter) Write(ctx context.Context, filename string, batch record.Batch) (*record.FileStats, string, error) {
	fullPath := w.router.Route(filename)
	if err := ctx.Err(); err != nil {
		return nil, fullPath, err
	}

	startTime := time.Now()
	format := string(w.encoderFactory.Format())

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		return nil, fullPath, w.fail(filename, "encoder_create", fullPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fullPath, w.fail(filename, "mkdir", fullPath, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fullPath, w.fail(filename, "create", fullPath, err)
	}

	buffered := bufio.NewWriter(file)
	stats, err := fileEncoder.Encode(buffered, batch)
	if err != nil {
		file.Close()
		return nil, fullPath, w.fail(filename, "encode", fullPath, err)
	}

	if err := buffered.Flush(); err != nil {
		file.Close()
		return nil, fullPath, w.fail(filename, "flush", fullPath, err)
	}

	if err := file.Close(); err != nil {
		return nil, fullPath, w.fail(filename, "close", fullPath, err)
	}

	fileInfo, err := os.Stat(fullPath)
	if err != nil {
		return nil, fullPath, w.fail(filename, "stat", fullPath, err)
	}
	stats.SizeBytes = fileInfo.Size()

	duration := time.Since(startTime)

	w.logger.Debug("wrote records to file",
		"file", filename,
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		w.metrics.IncFilesWritten(format, record.StatusSuccess)
		w.metrics.ObserveFileSize(format, float64(stats.SizeBytes))
		w.metrics.ObserveWriteDuration(format, duration.Seconds())
	}

	return stats, fullPath, nil
}

func (w *FileWriter) fail(filename, operation, path string, err error) error {
	if w.metrics != nil {
		w.metrics.IncStorageErrors("file", operation)
		w.metrics.IncFilesWritten(string(w.encoderFactory.Format()), record.StatusFailed)
	}
	return &apperrors.WriteError{
		Filename:  filename,
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}
