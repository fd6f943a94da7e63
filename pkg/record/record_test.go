package record

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestRecord_MarshalJSON_KeepsFieldOrder(t *testing.T) {
	rec := NewRecord(3)
	rec.Set("zeta", 1)
	rec.Set("alpha", "a<b>")
	rec.Set("mid", nil)

	got, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"zeta":1,"alpha":"a<b>","mid":null}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestRecord_SetOverwriteKeepsPosition(t *testing.T) {
	rec := NewRecord(2)
	rec.Set("a", 1)
	rec.Set("b", 2)
	rec.Set("a", 3)

	if rec.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rec.Len())
	}
	if rec.Fields[0] != "a" || rec.Fields[1] != "b" {
		t.Errorf("Fields = %v, want [a b]", rec.Fields)
	}
	if v, _ := rec.Get("a"); v != 3 {
		t.Errorf("Get(a) = %v, want 3", v)
	}
}

func TestRecord_SetOnZeroValue(t *testing.T) {
	var rec Record
	rec.Set("x", true)

	if v, ok := rec.Get("x"); !ok || v != true {
		t.Errorf("Get(x) = %v, %v", v, ok)
	}
}

func TestRecord_MarshalJSON_UnsupportedValue(t *testing.T) {
	rec := NewRecord(1)
	rec.Set("ch", make(chan int))

	if _, err := json.Marshal(rec); err == nil {
		t.Error("expected error for channel value")
	}
}

func TestBatch_Columns(t *testing.T) {
	r1 := NewRecord(2)
	r1.Set("name", "John")
	r1.Set("address", "New York")
	r2 := NewRecord(2)
	r2.Set("name", "Jane")
	r2.Set("age", 31)

	got := NewBatch([]string{"id", "name"}, r1, r2).Columns()
	want := []string{"id", "name", "address", "age"}
	if len(got) != len(want) {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Columns()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBatch_EmptyKeepsSchemaFields(t *testing.T) {
	b := NewBatch([]string{"name", "address"})
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	if got := b.Columns(); len(got) != 2 || got[0] != "name" || got[1] != "address" {
		t.Errorf("Columns() = %v, want [name address]", got)
	}
}

func TestMarshalValue_NonFiniteFloats(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nan", math.NaN(), "null"},
		{"positive infinity", math.Inf(1), "null"},
		{"negative infinity float32", float32(math.Inf(-1)), "null"},
		{"finite", 1.5, "1.5"},
		{"nested map", map[string]any{"a": math.NaN(), "b": 2.0}, `{"a":null,"b":2}`},
		{"nested slice", []any{1.0, math.Inf(1)}, "[1,null]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalValue(tt.in)
			if err != nil {
				t.Fatalf("MarshalValue() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("MarshalValue() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseFileFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    FileFormat
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: "JSON", want: FormatJSON},
		{in: " Parquet ", want: FormatParquet},
		{in: "xml", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFileFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFileFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFileFormat(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileFormat_Extension(t *testing.T) {
	for _, f := range []FileFormat{FormatCSV, FormatJSON, FormatParquet} {
		if got := f.Extension(); got != "."+string(f) {
			t.Errorf("%s.Extension() = %s", f, got)
		}
	}
}

func TestParseSourceKind(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceKind
		wantErr bool
	}{
		{in: "fs", want: SourceFS},
		{in: "GS", want: SourceGCS},
		{in: "s3", want: SourceS3},
		{in: "azure", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSourceKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSourceKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSourceKind(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestConversionResult_Status(t *testing.T) {
	tests := []struct {
		name   string
		result ConversionResult
		want   string
	}{
		{name: "success", result: ConversionResult{Filename: "a.avro", Duration: time.Second}, want: StatusSuccess},
		{name: "skipped", result: ConversionResult{Skipped: true}, want: StatusSkipped},
		{name: "failed wins", result: ConversionResult{Skipped: true, Err: errors.New("boom")}, want: StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}
