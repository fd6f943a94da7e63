// Package validator provides run parameter validation.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jittakal/avroconvert/internal/encoder"
	"github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
)

// Params holds the run parameters checked before any I/O happens.
type Params struct {
	Source      string
	Bucket      string
	Format      string
	OutputDir   string
	Compression string
	Workers     int
}

// RunValidator validates conversion run parameters.
type RunValidator struct{}

// NewRunValidator creates a new run validator.
func NewRunValidator() *RunValidator {
	return &RunValidator{}
}

// Validate checks p and normalizes the source, format and compression
// names in place.
func (v *RunValidator) Validate(p *Params) error {
	if strings.TrimSpace(p.Source) == "" {
		return required("source")
	}
	kind, err := record.ParseSourceKind(p.Source)
	if err != nil {
		return &errors.ConfigurationError{
			Field:  "source",
			Reason: fmt.Sprintf("unsupported source: %s (supported: fs, gs, s3)", p.Source),
		}
	}
	p.Source = string(kind)

	if strings.TrimSpace(p.Bucket) == "" {
		if kind == record.SourceFS {
			return required("input_dir")
		}
		return required("bucket")
	}

	if strings.TrimSpace(p.Format) == "" {
		return required("format")
	}
	format, err := record.ParseFileFormat(p.Format)
	if err != nil {
		return &errors.ConfigurationError{
			Field:  "format",
			Reason: fmt.Sprintf("unsupported format: %s (supported: %s)", p.Format, formatNames()),
		}
	}
	p.Format = string(format)

	if strings.TrimSpace(p.OutputDir) == "" {
		return required("outfolder")
	}

	// Compression applies to Parquet only and is ignored otherwise.
	if format == record.FormatParquet {
		p.Compression = strings.ToLower(strings.TrimSpace(p.Compression))
		if p.Compression == "" {
			p.Compression = encoder.DefaultCompression(format)
		}
		if supported := encoder.SupportedCompressions(format); !slices.Contains(supported, p.Compression) {
			return &errors.ConfigurationError{
				Field:  "compression",
				Reason: fmt.Sprintf("unsupported compression: %s (supported: %s)", p.Compression, strings.Join(supported, ", ")),
			}
		}
	}

	if p.Workers < 0 {
		return &errors.ConfigurationError{
			Field:  "workers",
			Reason: fmt.Sprintf("must not be negative, got %d", p.Workers),
		}
	}

	return nil
}

func required(field string) error {
	return &errors.ConfigurationError{
		Field:  field,
		Reason: "required field is missing",
	}
}

func formatNames() string {
	formats := encoder.SupportedFormats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
