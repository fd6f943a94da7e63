// Package source implements the input adapters that list and download
// Avro files from the local filesystem, Google Cloud Storage and S3.
package source

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
	"github.com/jittakal/avroconvert/pkg/storage"
)

// fetchConcurrency bounds concurrent downloads per adapter.
const fetchConcurrency = 8

// SupportedDatatypes lists the input datatypes every adapter accepts.
var SupportedDatatypes = []string{record.DatatypeAvro}

// Credentials carries the authentication inputs of the cloud adapters.
// Each adapter reads only the fields that apply to it.
type Credentials struct {
	// gs
	AuthFile              string
	UseDefaultCredentials bool

	// s3
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	UsePathStyle bool

	// Endpoint overrides the service endpoint (emulators, MinIO).
	Endpoint string
}

// Config contains the parameters an adapter is built with.
type Config struct {
	// Bucket is the bucket name, or the input directory for fs.
	Bucket      string
	Prefix      string
	Datatype    string
	Credentials Credentials
}

// MetricsCollector defines metrics operations for sources.
type MetricsCollector interface {
	SetSourceFiles(source string, count int)
	AddSourceBytes(source string, n int)
	IncStorageErrors(backend string, operation string)
}

// Factory builds a source adapter.
type Factory func(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Source, error)

// Factories returns the lookup table from source kind to adapter constructor.
func Factories() map[record.SourceKind]Factory {
	return map[record.SourceKind]Factory{
		record.SourceFS: func(_ context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Source, error) {
			return NewFileSource(cfg, logger, metrics)
		},
		record.SourceGCS: func(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Source, error) {
			return NewGCSSource(ctx, cfg, logger, metrics)
		},
		record.SourceS3: func(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Source, error) {
			return NewS3Source(ctx, cfg, logger, metrics)
		},
	}
}

// checkDatatype defaults an empty datatype to avro and rejects the rest.
func checkDatatype(datatype string) (string, error) {
	if datatype == "" {
		return record.DatatypeAvro, nil
	}
	for _, supported := range SupportedDatatypes {
		if datatype == supported {
			return datatype, nil
		}
	}
	return "", &apperrors.UnsupportedTypeError{
		Datatype:  datatype,
		Supported: SupportedDatatypes,
	}
}

// matches reports whether an identifier names a file of the given datatype.
// Pseudo-directory markers never match.
func matches(name, datatype string) bool {
	if name == "" || strings.HasSuffix(name, "/") {
		return false
	}
	return strings.HasSuffix(name, "."+datatype)
}

// fetchAll downloads every name with bounded concurrency. The first
// failure cancels the remaining downloads.
func fetchAll(ctx context.Context, names []string, fetch func(ctx context.Context, name string) ([]byte, error)) (map[string][]byte, error) {
	files := make(map[string][]byte, len(names))
	if len(names) == 0 {
		return files, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	var mu sync.Mutex
	for _, name := range names {
		g.Go(func() error {
			data, err := fetch(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			files[name] = data
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// report publishes the listing result of one GetData call.
func report(metrics MetricsCollector, kind record.SourceKind, files map[string][]byte) {
	if metrics == nil {
		return
	}
	metrics.SetSourceFiles(string(kind), len(files))
	for _, data := range files {
		metrics.AddSourceBytes(string(kind), len(data))
	}
}
