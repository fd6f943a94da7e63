// Package encoder implements file format encoders.
package encoder

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/encoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// sparkInvalidChars are replaced with '_' in column names.
const sparkInvalidChars = " ,;{}()\n\t="

// ParquetEncoder implements encoder.Encoder for Apache Parquet columnar format.
// The schema is derived from the batch: every column is optional and typed
// from the values it holds. Supports SNAPPY (default), GZIP, LZ4, ZSTD.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts string compression name to parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// columnKind is the inferred storage type of a column.
type columnKind int

const (
	kindNull columnKind = iota
	kindBool
	kindInt32
	kindInt64
	kindFloat
	kindDouble
	kindString
	kindBytes
	kindTimestamp
	kindJSON
)

// column maps a record field to its Parquet leaf.
type column struct {
	field string
	name  string
	kind  columnKind
	index int
}

// Encode materializes the batch as one table and writes a single Parquet file.
func (e *ParquetEncoder) Encode(w io.Writer, batch record.Batch) (*record.FileStats, error) {
	columns := inferColumns(batch)
	if len(columns) == 0 {
		return nil, apperrors.ErrNoRecords
	}

	group := make(parquet.Group, len(columns))
	for _, col := range columns {
		group[col.name] = parquet.Optional(leafNode(col.kind))
	}
	schema := parquet.NewSchema("spark_schema", group)

	// Group fields are ordered by name, which fixes each leaf's column index.
	sort.Slice(columns, func(i, j int) bool { return columns[i].name < columns[j].name })
	for i := range columns {
		columns[i].index = i
	}

	rows := make([]parquet.Row, 0, batch.Len())
	for i, rec := range batch.Records {
		row, err := buildRow(columns, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	writer := parquet.NewWriter(w,
		schema,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("avroconvert", "1.0", "0"),
	)

	if _, err := writer.WriteRows(rows); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return &record.FileStats{
		RecordCount: batch.Len(),
		Columns:     len(columns),
		WrittenAt:   time.Now(),
	}, nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() record.FileFormat {
	return record.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return record.FormatParquet.Extension()
}

// inferColumns computes the column set and the type of each column.
// Schema fields without values, as in a file with no records, become
// optional UTF8 columns.
func inferColumns(batch record.Batch) []column {
	fields := batch.Columns()
	names := sanitizeNames(fields)

	columns := make([]column, len(fields))
	for i, f := range fields {
		kind := kindNull
		for _, rec := range batch.Records {
			kind = mergeKind(kind, kindOf(rec.Values[f]))
		}
		if kind == kindNull {
			kind = kindString
		}
		columns[i] = column{field: f, name: names[i], kind: kind}
	}
	return columns
}

// sanitizeNames applies Spark naming rules and keeps the names unique.
func sanitizeNames(fields []string) []string {
	used := make(map[string]bool, len(fields))
	out := make([]string, len(fields))
	for i, f := range fields {
		base := strings.Map(func(r rune) rune {
			if strings.ContainsRune(sparkInvalidChars, r) {
				return '_'
			}
			return r
		}, f)
		if base == "" {
			base = "_"
		}

		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func kindOf(v any) columnKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case int32, int16, int8:
		return kindInt32
	case int, int64:
		return kindInt64
	case float32:
		return kindFloat
	case float64:
		return kindDouble
	case string:
		return kindString
	case []byte:
		return kindBytes
	case time.Time:
		return kindTimestamp
	default:
		return kindJSON
	}
}

func isNumeric(k columnKind) bool {
	return k == kindInt32 || k == kindInt64 || k == kindFloat || k == kindDouble
}

// mergeKind widens a column type to accept another value type.
func mergeKind(a, b columnKind) columnKind {
	switch {
	case a == kindNull:
		return b
	case b == kindNull, a == b:
		return a
	case isNumeric(a) && isNumeric(b):
		if (a == kindInt32 && b == kindInt64) || (a == kindInt64 && b == kindInt32) {
			return kindInt64
		}
		return kindDouble
	default:
		return kindString
	}
}

func leafNode(kind columnKind) parquet.Node {
	switch kind {
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	case kindInt32:
		return parquet.Int(32)
	case kindInt64:
		return parquet.Int(64)
	case kindFloat:
		return parquet.Leaf(parquet.FloatType)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindBytes:
		return parquet.Leaf(parquet.ByteArrayType)
	case kindTimestamp:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

func buildRow(columns []column, rec record.Record) (parquet.Row, error) {
	row := make(parquet.Row, len(columns))
	for _, col := range columns {
		v := rec.Values[col.field]
		if v == nil {
			row[col.index] = parquet.NullValue().Level(0, 0, col.index)
			continue
		}

		pv, err := toValue(col.kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.field, err)
		}
		row[col.index] = pv.Level(0, 1, col.index)
	}
	return row, nil
}

func toValue(kind columnKind, v any) (parquet.Value, error) {
	switch kind {
	case kindBool:
		return parquet.BooleanValue(v.(bool)), nil
	case kindInt32:
		return parquet.Int32Value(int32(toInt64(v))), nil
	case kindInt64:
		return parquet.Int64Value(toInt64(v)), nil
	case kindFloat:
		return parquet.FloatValue(v.(float32)), nil
	case kindDouble:
		return parquet.DoubleValue(toFloat64(v)), nil
	case kindBytes:
		return parquet.ByteArrayValue(v.([]byte)), nil
	case kindTimestamp:
		return parquet.Int64Value(v.(time.Time).UnixMicro()), nil
	default:
		s, err := formatCell(v)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ByteArrayValue([]byte(s)), nil
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return float64(toInt64(v))
	}
}
