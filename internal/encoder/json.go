package encoder

import (
	"fmt"
	"io"
	"time"

	"github.com/jittakal/avroconvert/pkg/encoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*JSONEncoder)(nil)

// JSONEncoder writes a batch as a single JSON array of objects.
type JSONEncoder struct{}

// NewJSONEncoder creates a JSON array encoder.
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

// Encode streams one object per record into a JSON array.
func (e *JSONEncoder) Encode(w io.Writer, batch record.Batch) (*record.FileStats, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return nil, fmt.Errorf("failed to write array start: %w", err)
	}

	for i, rec := range batch.Records {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return nil, fmt.Errorf("failed to write separator: %w", err)
			}
		}
		b, err := rec.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %d: %w", i, err)
		}
		if _, err := w.Write(b); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return nil, fmt.Errorf("failed to write array end: %w", err)
	}

	return &record.FileStats{
		RecordCount: batch.Len(),
		Columns:     len(batch.Columns()),
		WrittenAt:   time.Now(),
	}, nil
}

// Format returns the file format.
func (e *JSONEncoder) Format() record.FileFormat {
	return record.FormatJSON
}

// FileExtension returns the file extension.
func (e *JSONEncoder) FileExtension() string {
	return record.FormatJSON.Extension()
}
