// Package config loads the optional YAML configuration file. Flags override
// anything set here; the file exists so recurring jobs don't repeat a dozen
// flags. Environment variables in the file are expanded before parsing, so
// credentials can be referenced as ${INFLUX_PW} instead of written down.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// Config is the root configuration structure.
type Config struct {
	// URL is the database HTTP endpoint.
	URL string `yaml:"url"`

	// User and Password authenticate against the endpoint. Password is
	// usually left empty here and supplied via INFLUX_PW or the prompt.
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Timeout applies to non-streaming HTTP requests.
	Timeout Duration `yaml:"timeout"`

	// Dir is where backup files live.
	Dir string `yaml:"dir"`

	// Gzip compresses backup files on dump and selects .gz files on restore.
	Gzip bool `yaml:"gzip"`

	// Measurements restores/dumps exactly these; FromMeasurement starts at
	// this name; IgnoreMeasurements is honored by the analytical loader.
	Measurements       []string `yaml:"measurements"`
	FromMeasurement    string   `yaml:"from_measurement"`
	IgnoreMeasurements []string `yaml:"ignore_measurements"`

	// ReadChunkSize bounds rows per extraction chunk; WriteChunkSize bounds
	// points per restore write.
	ReadChunkSize  int `yaml:"read_chunk_size"`
	WriteChunkSize int `yaml:"write_chunk_size"`

	// ChunkDelay paces restore writes; MeasurementDelay paces measurements.
	ChunkDelay       Duration `yaml:"chunk_delay"`
	MeasurementDelay Duration `yaml:"measurement_delay"`

	// Parallel runs this many measurement dumps concurrently. 0 or 1 is
	// sequential.
	Parallel int `yaml:"parallel"`

	// WriteRetries and RetryDelay control transient write retry behavior.
	WriteRetries int      `yaml:"write_retries"`
	RetryDelay   Duration `yaml:"retry_delay"`

	// Analytical holds DuckDB loader settings.
	Analytical AnalyticalConfig `yaml:"analytical"`
}

// Duration is a time.Duration that unmarshals from "500ms"-style strings or
// bare integers (seconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. A plain YAML integer would also
// decode as a string, so the scalar tag decides which form this is.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var i int
		if err := value.Decode(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// AnalyticalConfig configures the DuckDB loader.
type AnalyticalConfig struct {
	DSN              string `yaml:"dsn"`
	ChunkSize        int    `yaml:"chunk_size"`
	AutoCreateSchema bool   `yaml:"auto_create_schema"`
	AutoDropSchema   bool   `yaml:"auto_drop_schema"`
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		URL: "http://localhost:8086",
		Dir: "backup",
	}
}

// Load reads path, expands environment variables and parses the YAML on top
// of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. Zero values mean "use the default" and are
// always valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.NewMissingField("url")
	}
	if c.ReadChunkSize < 0 {
		return errors.NewValidation("read_chunk_size", "cannot be negative")
	}
	if c.WriteChunkSize < 0 {
		return errors.NewValidation("write_chunk_size", "cannot be negative")
	}
	if c.ChunkDelay < 0 || c.MeasurementDelay < 0 {
		return errors.NewValidation("chunk_delay/measurement_delay", "cannot be negative")
	}
	if c.Parallel < 0 {
		return errors.NewValidation("parallel", "cannot be negative")
	}
	return nil
}
