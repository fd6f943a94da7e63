package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
	"github.com/jittakal/avroconvert/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Source = (*FileSource)(nil)

// FileSource reads input files from a local directory tree.
// The prefix filters on each file's base name; identifiers are
// slash-separated paths relative to the input directory.
type FileSource struct {
	root     string
	prefix   string
	datatype string
	logger   *slog.Logger
	metrics  MetricsCollector
	closed   atomic.Bool
}

// NewFileSource creates a filesystem source rooted at cfg.Bucket.
func NewFileSource(cfg Config, logger *slog.Logger, metrics MetricsCollector) (*FileSource, error) {
	if cfg.Bucket == "" {
		return nil, &apperrors.ConfigurationError{Field: "input_dir", Reason: "input directory is required"}
	}

	datatype, err := checkDatatype(cfg.Datatype)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.Bucket)
	if err != nil {
		return nil, &apperrors.ConfigurationError{
			Field:  "input_dir",
			Reason: fmt.Sprintf("cannot access input directory: %v", err),
		}
	}
	if !info.IsDir() {
		return nil, &apperrors.ConfigurationError{
			Field:  "input_dir",
			Reason: fmt.Sprintf("%s is not a directory", cfg.Bucket),
		}
	}

	logger.Debug("filesystem source created",
		"input_dir", cfg.Bucket,
		"prefix", cfg.Prefix,
		"datatype", datatype,
	)

	return &FileSource{
		root:     cfg.Bucket,
		prefix:   cfg.Prefix,
		datatype: datatype,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// GetData reads every matching file under the input directory.
func (s *FileSource) GetData(ctx context.Context) (map[string][]byte, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrSourceClosed
	}

	s.logger.Info("listing files in filesystem", "input_dir", s.root, "prefix", s.prefix)

	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), s.prefix) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); matches(name, s.datatype) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncStorageErrors("fs", "list")
		}
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	if len(names) == 0 {
		s.logger.Info("no matching files found in filesystem", "prefix", s.prefix)
		report(s.metrics, record.SourceFS, nil)
		return map[string][]byte{}, nil
	}
	sort.Strings(names)

	files, err := fetchAll(ctx, names, s.read)
	if err != nil {
		return nil, err
	}
	report(s.metrics, record.SourceFS, files)
	return files, nil
}

func (s *FileSource) read(_ context.Context, name string) ([]byte, error) {
	s.logger.Info("reading file from filesystem", "file", name)

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncStorageErrors("fs", "read")
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Close marks the source closed.
func (s *FileSource) Close() error {
	s.closed.Store(true)
	return nil
}
