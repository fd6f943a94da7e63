// Package decoder defines the interface for turning raw input files into records.
package decoder

import "github.com/jittakal/avroconvert/pkg/record"

// Decoder decodes the raw bytes of one input file into a record batch.
type Decoder interface {
	// Decode returns every record in data. filename is used for error reporting.
	Decode(filename string, data []byte) (record.Batch, error)
}
