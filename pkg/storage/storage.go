// Package storage defines interfaces for reading input files and persisting
// converted output.
//
// This package provides abstractions over the input sources (local
// filesystem, Google Cloud Storage, S3) and the local output writer.
package storage

import (
	"context"

	"github.com/jittakal/avroconvert/pkg/record"
)

// Source lists and downloads input files.
type Source interface {
	// GetData returns every matching file keyed by its source-relative identifier.
	// An empty map with a nil error means nothing matched.
	GetData(ctx context.Context) (map[string][]byte, error)

	// Close releases clients held by the source.
	Close() error
}

// Writer persists one converted batch.
type Writer interface {
	// Write encodes the batch for the input file name and returns the file
	// statistics and the output path.
	Write(ctx context.Context, filename string, batch record.Batch) (*record.FileStats, string, error)
}

// Router determines the output path for an input file.
type Router interface {
	// Route returns the output path for a source-relative input identifier.
	Route(filename string) string
}
