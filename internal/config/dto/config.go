package dto

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jittakal/avroconvert/internal/encoder"
	"github.com/jittakal/avroconvert/pkg/record"
)

// ApplicationConfig is the root configuration structure. Each source
// kind has its own section, keyed by the subcommand name.
type ApplicationConfig struct {
	GS         GSConfig         `mapstructure:"gs"`
	S3         S3Config         `mapstructure:"s3"`
	FS         FSConfig         `mapstructure:"fs"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// CommonConfig holds the keys shared by every source section.
type CommonConfig struct {
	Prefix    string `mapstructure:"prefix"`
	Format    string `mapstructure:"format"`
	Outfolder string `mapstructure:"outfolder"`
}

// GSConfig contains Google Cloud Storage source configuration
type GSConfig struct {
	CommonConfig          `mapstructure:",squash"`
	Bucket                string `mapstructure:"bucket"`
	AuthFile              string `mapstructure:"auth_file"`
	UseDefaultCredentials bool   `mapstructure:"use_default_credentials"`
	Endpoint              string `mapstructure:"endpoint"`
}

// S3Config contains AWS S3 source configuration
type S3Config struct {
	CommonConfig `mapstructure:",squash"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	SessionToken string `mapstructure:"session_token"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// FSConfig contains local filesystem source configuration
type FSConfig struct {
	CommonConfig `mapstructure:",squash"`
	InputDir     string `mapstructure:"input_dir"`
}

// ConversionConfig contains settings applied to every run
type ConversionConfig struct {
	Workers     int    `mapstructure:"workers"`
	Header      bool   `mapstructure:"header"`
	Compression string `mapstructure:"compression"`
	Datatype    string `mapstructure:"datatype"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics export settings. Both are optional.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	File string `mapstructure:"file"`
}

// Section returns the common keys of the section for kind.
func (c *ApplicationConfig) Section(kind record.SourceKind) CommonConfig {
	switch kind {
	case record.SourceGCS:
		return c.GS.CommonConfig
	case record.SourceS3:
		return c.S3.CommonConfig
	case record.SourceFS:
		return c.FS.CommonConfig
	}
	return CommonConfig{}
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	sections := []struct {
		name   string
		common CommonConfig
	}{
		{"gs", c.GS.CommonConfig},
		{"s3", c.S3.CommonConfig},
		{"fs", c.FS.CommonConfig},
	}
	for _, s := range sections {
		if err := s.common.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if err := c.Conversion.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Validate checks the output format when one is set.
func (c *CommonConfig) Validate() error {
	if c.Format == "" {
		return nil
	}
	if _, err := record.ParseFileFormat(c.Format); err != nil {
		return err
	}
	return nil
}

// Validate validates conversion settings.
func (c *ConversionConfig) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("conversion workers must not be negative: %d", c.Workers)
	}
	if c.Compression != "" {
		supported := encoder.SupportedCompressions(record.FormatParquet)
		if !slices.Contains(supported, strings.ToLower(c.Compression)) {
			return fmt.Errorf("unsupported compression %q (supported: %s)",
				c.Compression, strings.Join(supported, ", "))
		}
	}
	return nil
}

// Validate validates logging settings.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch strings.ToLower(c.Output) {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("unsupported log output: %s", c.Output)
	}
	return nil
}
