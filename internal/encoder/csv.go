package encoder

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jittakal/avroconvert/pkg/encoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*CSVEncoder)(nil)

// CSVEncoder writes a batch as comma-separated values.
// The column order is the field order of the first record.
type CSVEncoder struct {
	header bool
}

// NewCSVEncoder creates a CSV encoder. header controls the leading header row.
func NewCSVEncoder(header bool) *CSVEncoder {
	return &CSVEncoder{header: header}
}

// Encode writes the header (if enabled) and one row per record.
func (e *CSVEncoder) Encode(w io.Writer, batch record.Batch) (*record.FileStats, error) {
	stats := &record.FileStats{WrittenAt: time.Now()}
	if batch.Len() == 0 {
		return stats, nil
	}

	columns := batch.Records[0].Fields
	stats.Columns = len(columns)

	cw := csv.NewWriter(w)
	if e.header {
		if err := cw.Write(columns); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := make([]string, len(columns))
	for i, rec := range batch.Records {
		for j, col := range columns {
			cell, err := formatCell(rec.Values[col])
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, col, err)
			}
			row[j] = cell
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv writer: %w", err)
	}

	stats.RecordCount = batch.Len()
	return stats, nil
}

// Format returns the file format.
func (e *CSVEncoder) Format() record.FileFormat {
	return record.FormatCSV
}

// FileExtension returns the file extension.
func (e *CSVEncoder) FileExtension() string {
	return record.FormatCSV.Extension()
}

// formatCell renders a decoded value as a single text cell.
func formatCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(t), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	default:
		b, err := record.MarshalValue(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
