package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"

	"github.com/jittakal/avroconvert/internal/config/dto"
	"github.com/jittakal/avroconvert/pkg/record"
)

// EnvPrefix is the prefix of environment variables read by the loader,
// for example AVROCONVERT_GS_BUCKET or AVROCONVERT_LOGGING_LEVEL.
const EnvPrefix = "AVROCONVERT"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	registry := viper.NewCodecRegistry()
	// Registration only fails for an empty format name.
	_ = registry.RegisterCodec("ini", ini.Codec{})

	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables. Files
// ending in .yaml, .yml, .json or .toml are read by viper, anything else
// is read as INI. A missing file is not an error.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		if err := l.readFile(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (l *Loader) readFile(path string) error {
	l.v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
		return l.v.ReadInConfig()
	}

	l.v.SetConfigType("ini")
	if err := l.v.ReadInConfig(); err != nil {
		return err
	}
	return l.inheritDefaults()
}

// inheritDefaults copies keys of the INI [DEFAULT] section into every
// source section that does not set them.
func (l *Loader) inheritDefaults() error {
	defaults := l.v.GetStringMap("default")
	if len(defaults) == 0 {
		return nil
	}

	inherited := make(map[string]any)
	for _, kind := range []record.SourceKind{record.SourceGCS, record.SourceS3, record.SourceFS} {
		section := make(map[string]any)
		for key, value := range defaults {
			if !l.v.InConfig(string(kind) + "." + key) {
				section[key] = value
			}
		}
		if len(section) > 0 {
			inherited[string(kind)] = section
		}
	}
	return l.v.MergeConfigMap(inherited)
}

// setDefaults registers every key so that environment variables bind
// even when the config file does not mention them.
func (l *Loader) setDefaults() {
	for _, section := range []record.SourceKind{record.SourceGCS, record.SourceS3, record.SourceFS} {
		l.v.SetDefault(string(section)+".prefix", "")
		l.v.SetDefault(string(section)+".format", "")
		l.v.SetDefault(string(section)+".outfolder", "")
	}

	// GCS defaults
	l.v.SetDefault("gs.bucket", "")
	l.v.SetDefault("gs.auth_file", "")
	l.v.SetDefault("gs.use_default_credentials", false)
	l.v.SetDefault("gs.endpoint", "")

	// S3 defaults
	l.v.SetDefault("s3.bucket", "")
	l.v.SetDefault("s3.access_key", "")
	l.v.SetDefault("s3.secret_key", "")
	l.v.SetDefault("s3.session_token", "")
	l.v.SetDefault("s3.region", "")
	l.v.SetDefault("s3.endpoint", "")
	l.v.SetDefault("s3.use_path_style", false)

	// Filesystem defaults
	l.v.SetDefault("fs.input_dir", "")

	// Conversion defaults
	l.v.SetDefault("conversion.workers", 0)
	l.v.SetDefault("conversion.header", true)
	l.v.SetDefault("conversion.compression", "")
	l.v.SetDefault("conversion.datatype", record.DatatypeAvro)

	// Observability defaults
	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
	l.v.SetDefault("logging.output", "stderr")
	l.v.SetDefault("metrics.addr", "")
	l.v.SetDefault("metrics.file", "")
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	return config.Validate()
}
