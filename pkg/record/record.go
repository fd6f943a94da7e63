// Package record defines the core data types shared by sources, decoders,
// encoders and the conversion orchestrator.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DatatypeAvro is the only input datatype understood by the sources.
const DatatypeAvro = "avro"

// RawFile is one input file as returned by a source.
type RawFile struct {
	// Name is the source-relative identifier (object key or relative path).
	Name string
	Data []byte
}

// Record is a single decoded row. Fields keeps the writer-schema order.
type Record struct {
	Fields []string
	Values map[string]any
}

// NewRecord creates an empty record with room for n fields.
func NewRecord(n int) Record {
	return Record{
		Fields: make([]string, 0, n),
		Values: make(map[string]any, n),
	}
}

// Set assigns a value, appending the field to the order if it is new.
func (r *Record) Set(field string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, ok := r.Values[field]; !ok {
		r.Fields = append(r.Fields, field)
	}
	r.Values[field] = value
}

// Get returns the value stored for field.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Len returns the number of fields in the record.
func (r Record) Len() int {
	return len(r.Fields)
}

// MarshalJSON encodes the record as a JSON object with keys in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := MarshalValue(field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := MarshalValue(r.Values[field])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue encodes v as compact JSON without HTML escaping. NaN and
// infinite floats, which JSON cannot represent, are written as null.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(finite(v)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// finite replaces non-finite floats with nil, descending into maps and
// slices. Records are left as is since their MarshalJSON calls
// MarshalValue per field.
func finite(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = finite(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = finite(e)
		}
		return out
	}
	return v
}

// Batch is every record decoded from one file. Fields holds the
// writer-schema field order and is set even when the file has no records.
type Batch struct {
	Fields  []string
	Records []Record
}

// NewBatch creates a batch from schema fields and records.
func NewBatch(fields []string, records ...Record) Batch {
	return Batch{Fields: fields, Records: records}
}

// Len returns the number of records.
func (b Batch) Len() int {
	return len(b.Records)
}

// Columns returns the schema fields followed by any other field names
// seen in the records, in first-seen order.
func (b Batch) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	add := func(f string) {
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		cols = append(cols, f)
	}
	for _, f := range b.Fields {
		add(f)
	}
	for _, rec := range b.Records {
		for _, f := range rec.Fields {
			add(f)
		}
	}
	return cols
}

// FileStats describes an encoded output file.
type FileStats struct {
	RecordCount int
	SizeBytes   int64
	Columns     int
	WrittenAt   time.Time
}

// FileFormat represents the output file format.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSON    FileFormat = "json"
	FormatParquet FileFormat = "parquet"
)

// Extension returns the canonical file extension including the dot.
func (f FileFormat) Extension() string {
	return "." + string(f)
}

// ParseFileFormat parses a case-insensitive format name.
func ParseFileFormat(s string) (FileFormat, error) {
	switch f := FileFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", s)
	}
}

// SourceKind identifies where input files come from.
type SourceKind string

const (
	SourceFS  SourceKind = "fs"
	SourceGCS SourceKind = "gs"
	SourceS3  SourceKind = "s3"
)

// ParseSourceKind parses a case-insensitive source name.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SourceFS, SourceGCS, SourceS3:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported source: %q", s)
	}
}

// Status values reported for a conversion result.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ConversionResult is the outcome of converting one input file.
type ConversionResult struct {
	Filename   string
	OutputPath string
	Records    int
	SizeBytes  int64
	Skipped    bool
	Err        error
	Duration   time.Duration
}

// Status returns success, failed or skipped.
func (r ConversionResult) Status() string {
	switch {
	case r.Err != nil:
		return StatusFailed
	case r.Skipped:
		return StatusSkipped
	default:
		return StatusSuccess
	}
}
