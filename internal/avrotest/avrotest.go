// Package avrotest builds Avro object container files for tests.
package avrotest

import (
	"bytes"
	"testing"

	"github.com/linkedin/goavro/v2"
)

// PeopleSchema is a flat record used across package tests.
const PeopleSchema = `{
	"type": "record",
	"name": "Person",
	"namespace": "com.example",
	"fields": [
		{"name": "name", "type": "string"},
		{"name": "address", "type": "string"}
	]
}`

// People returns the two-row fixture matching PeopleSchema.
func People() []any {
	return []any{
		map[string]any{"name": "John", "address": "New York"},
		map[string]any{"name": "Jane", "address": "Mumbai"},
	}
}

// OCF encodes data as an object container file using schema.
func OCF(t testing.TB, schema string, data []any) []byte {
	t.Helper()

	codec, err := goavro.NewCodec(schema)
	if err != nil {
		t.Fatalf("failed to create avro codec: %v", err)
	}

	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		t.Fatalf("failed to create OCF writer: %v", err)
	}
	if len(data) > 0 {
		if err := w.Append(data); err != nil {
			t.Fatalf("failed to append records: %v", err)
		}
	}
	return buf.Bytes()
}
