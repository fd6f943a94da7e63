// Package encoder defines interfaces for encoding record batches to output file formats.
package encoder

import (
	"io"

	"github.com/jittakal/avroconvert/pkg/record"
)

// Encoder encodes a record batch to a specific file format.
type Encoder interface {
	// Encode writes the batch to w and returns statistics about what was written.
	// SizeBytes is filled in by the caller once the file is closed.
	Encode(w io.Writer, batch record.Batch) (*record.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() record.FileFormat

	// FileExtension returns the file extension (e.g., ".csv", ".parquet").
	FileExtension() string
}
