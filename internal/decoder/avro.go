// Package decoder implements input decoders.
package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/decoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ decoder.Decoder = (*AvroDecoder)(nil)

// ValueField is the field name used when the writer schema is not a record.
const ValueField = "value"

// AvroDecoder reads Avro object container files.
//
// goavro returns union values wrapped as map[typeName]value. The decoder
// walks the writer schema next to every datum so unions are unwrapped only
// where the schema declares one, and a genuine single-key map is left alone.
type AvroDecoder struct{}

// NewAvroDecoder creates a new Avro OCF decoder.
func NewAvroDecoder() *AvroDecoder {
	return &AvroDecoder{}
}

// Decode reads every datum from an OCF payload.
func (d *AvroDecoder) Decode(filename string, data []byte) (record.Batch, error) {
	if len(data) == 0 {
		return record.Batch{}, &apperrors.DecodeError{Filename: filename, Err: apperrors.ErrEmptyPayload}
	}

	ocfr, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return record.Batch{}, &apperrors.DecodeError{Filename: filename, Err: fmt.Errorf("failed to read container header: %w", err)}
	}

	var schema any
	if err := json.Unmarshal([]byte(ocfr.Codec().Schema()), &schema); err != nil {
		return record.Batch{}, &apperrors.DecodeError{Filename: filename, Err: fmt.Errorf("failed to parse writer schema: %w", err)}
	}

	w := newSchemaWalker(schema)
	fields, isRecord := w.recordFields(schema)

	batch := record.Batch{Fields: []string{ValueField}}
	if isRecord {
		batch.Fields = make([]string, len(fields))
		for i, f := range fields {
			batch.Fields[i] = f.name
		}
	}

	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return record.Batch{}, &apperrors.DecodeError{
				Filename: filename,
				Err:      fmt.Errorf("failed to read datum %d: %w", batch.Len(), err),
			}
		}

		if !isRecord {
			rec := record.NewRecord(1)
			rec.Set(ValueField, w.normalize(schema, datum))
			batch.Records = append(batch.Records, rec)
			continue
		}

		values, ok := datum.(map[string]any)
		if !ok {
			return record.Batch{}, &apperrors.DecodeError{
				Filename: filename,
				Err:      fmt.Errorf("datum %d: expected record, got %T", batch.Len(), datum),
			}
		}
		batch.Records = append(batch.Records, w.buildRecord(fields, values))
	}
	if err := ocfr.Err(); err != nil {
		return record.Batch{}, &apperrors.DecodeError{Filename: filename, Err: err}
	}

	return batch, nil
}

type fieldDef struct {
	name   string
	schema any
}

// schemaWalker resolves named types and normalizes goavro native values.
type schemaWalker struct {
	named map[string]any
}

func newSchemaWalker(schema any) *schemaWalker {
	w := &schemaWalker{named: make(map[string]any)}
	w.register(schema, "")
	return w
}

// register indexes every named type by full and short name.
func (w *schemaWalker) register(schema any, namespace string) {
	switch s := schema.(type) {
	case []any:
		for _, branch := range s {
			w.register(branch, namespace)
		}
	case map[string]any:
		typ, _ := s["type"].(string)
		switch typ {
		case "record", "error", "enum", "fixed":
			name, _ := s["name"].(string)
			ns := namespace
			if v, ok := s["namespace"].(string); ok {
				ns = v
			}
			full := name
			if !strings.Contains(name, ".") && ns != "" {
				full = ns + "." + name
			}
			if i := strings.LastIndex(full, "."); i >= 0 {
				ns = full[:i]
			}
			w.named[full] = s
			w.named[shortName(full)] = s

			if fields, ok := s["fields"].([]any); ok {
				for _, f := range fields {
					if fm, ok := f.(map[string]any); ok {
						w.register(fm["type"], ns)
					}
				}
			}
		case "array":
			w.register(s["items"], namespace)
		case "map":
			w.register(s["values"], namespace)
		default:
			if inner, ok := s["type"]; ok {
				if _, isString := inner.(string); !isString {
					w.register(inner, namespace)
				}
			}
		}
	}
}

func (w *schemaWalker) resolve(schema any) any {
	if name, ok := schema.(string); ok {
		if def, ok := w.named[name]; ok {
			return def
		}
	}
	return schema
}

// recordFields returns the ordered fields when schema is a record.
func (w *schemaWalker) recordFields(schema any) ([]fieldDef, bool) {
	s, ok := w.resolve(schema).(map[string]any)
	if !ok {
		return nil, false
	}
	if typ, _ := s["type"].(string); typ != "record" && typ != "error" {
		return nil, false
	}

	raw, _ := s["fields"].([]any)
	fields := make([]fieldDef, 0, len(raw))
	for _, f := range raw {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		name, _ := fm["name"].(string)
		fields = append(fields, fieldDef{name: name, schema: fm["type"]})
	}
	return fields, true
}

func (w *schemaWalker) buildRecord(fields []fieldDef, values map[string]any) record.Record {
	rec := record.NewRecord(len(fields))
	for _, f := range fields {
		rec.Set(f.name, w.normalize(f.schema, values[f.name]))
	}
	return rec
}

func (w *schemaWalker) normalize(schema any, v any) any {
	if v == nil {
		return nil
	}

	switch s := w.resolve(schema).(type) {
	case []any:
		return w.unwrapUnion(s, v)
	case map[string]any:
		switch typ, _ := s["type"].(string); typ {
		case "record", "error":
			values, ok := v.(map[string]any)
			if !ok {
				return scalar(v)
			}
			fields, _ := w.recordFields(s)
			return w.buildRecord(fields, values)
		case "array":
			items, ok := v.([]any)
			if !ok {
				return scalar(v)
			}
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = w.normalize(s["items"], item)
			}
			return out
		case "map":
			entries, ok := v.(map[string]any)
			if !ok {
				return scalar(v)
			}
			out := make(map[string]any, len(entries))
			for k, item := range entries {
				out[k] = w.normalize(s["values"], item)
			}
			return out
		case "":
			// {"type": <schema>} wrapper around a non-string type
			return w.normalize(s["type"], v)
		default:
			return scalar(v)
		}
	default:
		return scalar(v)
	}
}

// unwrapUnion strips goavro's {"typeName": value} wrapper.
func (w *schemaWalker) unwrapUnion(branches []any, v any) any {
	wrapped, ok := v.(map[string]any)
	if !ok || len(wrapped) != 1 {
		return scalar(v)
	}

	for name, inner := range wrapped {
		for _, branch := range branches {
			if branchMatches(branch, name) {
				return w.normalize(branch, inner)
			}
		}
		return loose(inner)
	}
	return nil
}

// branchMatches reports whether a union branch carries the goavro type name.
func branchMatches(branch any, name string) bool {
	switch b := branch.(type) {
	case string:
		return b == name || shortName(b) == shortName(name)
	case map[string]any:
		typ, _ := b["type"].(string)
		if logical, ok := b["logicalType"].(string); ok && name == typ+"."+logical {
			return true
		}
		switch typ {
		case "record", "error", "enum", "fixed":
			bn, _ := b["name"].(string)
			return bn == name || shortName(bn) == shortName(name)
		default:
			return typ == name
		}
	}
	return false
}

func shortName(full string) string {
	if i := strings.LastIndex(full, "."); i >= 0 {
		return full[i+1:]
	}
	return full
}

// loose normalizes a value whose schema could not be resolved.
func loose(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = loose(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = loose(item)
		}
		return out
	default:
		return scalar(v)
	}
}

// scalar converts goavro logical-type values into plain Go values.
func scalar(v any) any {
	switch t := v.(type) {
	case *big.Rat:
		f, _ := t.Float64()
		return f
	case time.Time:
		return t.UTC()
	case time.Duration:
		return formatClock(t)
	default:
		return v
	}
}

// formatClock renders a time-of-day duration as HH:MM:SS.ffffff.
func formatClock(d time.Duration) string {
	micros := d.Microseconds()
	h := micros / int64(time.Hour/time.Microsecond)
	micros -= h * int64(time.Hour/time.Microsecond)
	m := micros / int64(time.Minute/time.Microsecond)
	micros -= m * int64(time.Minute/time.Microsecond)
	s := micros / int64(time.Second/time.Microsecond)
	micros -= s * int64(time.Second/time.Microsecond)
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, micros)
}
