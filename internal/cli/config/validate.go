package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
)

// OutputFormats lists the accepted --output values.
var OutputFormats = []string{"auto", "table", "text", "markdown", "json", "csv"}

var extensionName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output: must be one of %v, got %q", OutputFormats, c.OutputFormat))
	}
	if c.Structured.Threads < 0 {
		errs = append(errs, errors.New("structured.threads: must not be negative"))
	}
	if c.Structured.MaxRows <= 0 {
		errs = append(errs, errors.New("structured.max_rows: must be positive"))
	}
	for _, ext := range c.Structured.Extensions {
		if !extensionName.MatchString(ext) {
			errs = append(errs, fmt.Errorf("structured.extensions: invalid extension name %q", ext))
		}
	}
	if c.UI.Port < 1 || c.UI.Port > 65535 {
		errs = append(errs, fmt.Errorf("ui.port: %d is out of range", c.UI.Port))
	}
	if c.UI.MaxSessions <= 0 {
		errs = append(errs, errors.New("ui.max_sessions: must be positive"))
	}

	return errors.Join(errs...)
}
