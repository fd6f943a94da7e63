// Package encoder implements encoder factory for creating file format encoders.
package encoder

import (
	"fmt"

	"github.com/jittakal/avroconvert/pkg/encoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Options carries per-format settings.
type Options struct {
	// Header controls whether CSV output starts with a header row.
	Header bool
	// Compression is the Parquet compression codec name.
	Compression string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Header:      true,
		Compression: DefaultCompression(record.FormatParquet),
	}
}

// Factory creates encoders based on format and configuration.
type Factory struct {
	format record.FileFormat
	opts   Options
}

// NewFactory creates a new encoder factory.
func NewFactory(format record.FileFormat, opts Options) *Factory {
	return &Factory{
		format: format,
		opts:   opts,
	}
}

// Format returns the configured output format.
func (f *Factory) Format() record.FileFormat {
	return f.format
}

// CreateEncoder returns a fresh encoder for the configured format.
// Encoders carry per-file state, so callers create one per output file.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case record.FormatCSV:
		return NewCSVEncoder(f.opts.Header), nil
	case record.FormatJSON:
		return NewJSONEncoder(), nil
	case record.FormatParquet:
		return NewParquetEncoder(f.opts.Compression), nil
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []record.FileFormat {
	return []record.FileFormat{
		record.FormatParquet,
		record.FormatCSV,
		record.FormatJSON,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format record.FileFormat) []string {
	switch format {
	case record.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	default:
		return []string{"uncompressed"}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format record.FileFormat) string {
	switch format {
	case record.FormatParquet:
		return "snappy"
	default:
		return "uncompressed"
	}
}
