package stdout

import (
	"fmt"
	"io"
	"time"

	"github.com/songzhibin97/qwork/pkg/log"
)

// Output formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config represents the configuration options for StdoutLogger.
type Config struct {
	Level log.Level `json:"level"`

	// Format is json or console
	Format string `json:"format"`

	// TimeFormat is a Go time layout. Default: RFC3339
	TimeFormat string `json:"time_format,omitempty"`

	EnableCaller     bool `json:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace"`

	// Output replaces os.Stdout, mainly for tests
	Output io.Writer `json:"-"`
}

// DefaultConfig returns a default configuration for StdoutLogger.
func DefaultConfig() *Config {
	return &Config{
		Level:            log.InfoLevel,
		Format:           FormatJSON,
		TimeFormat:       time.RFC3339,
		EnableStacktrace: true,
	}
}

// FromSettings builds a Config from the textual level and format of the
// application configuration.
func FromSettings(level, format string) (*Config, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Level = lvl
	if format != "" {
		cfg.Format = format
	}
	return cfg, cfg.Validate()
}

// Validate validates the configuration and fills empty values.
func (c *Config) Validate() error {
	if c.Level < log.DebugLevel || c.Level > log.FatalLevel {
		return fmt.Errorf("invalid log level: %d", c.Level)
	}

	switch c.Format {
	case "":
		c.Format = FormatJSON
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339
	}
	if _, err := time.Parse(c.TimeFormat, time.Now().Format(c.TimeFormat)); err != nil {
		return fmt.Errorf("invalid time format: %s", c.TimeFormat)
	}
	return nil
}
