package config

import (
	"log/slog"
	"strings"

	"github.com/ic3tools/enfetch/internal/core"
)

// Validate checks if the configuration is valid. Every failure is a
// configuration error.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return configErr("inputs", "at least one input is required\nHint: Add an inputs section to enfetch.yaml")
	}

	seen := make(map[string]bool, len(c.Inputs))
	for i := range c.Inputs {
		in := &c.Inputs[i]
		if err := in.Validate(); err != nil {
			return err
		}
		if seen[in.InputName] {
			return configErr("inputs", "duplicate input name %q", in.InputName)
		}
		seen[in.InputName] = true
	}

	if err := c.Remote.Validate(); err != nil {
		return err
	}

	if _, err := c.BuildSchedule(); err != nil {
		return core.Wrap(core.KindConfiguration, "validate config", "schedule", err)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Output {
	case "", "auto", "text", "markdown", "json":
	default:
		return configErr("output", "unknown output format %q (auto|text|markdown|json)", c.Output)
	}

	if c.Watch.Interval <= 0 {
		return configErr("watch.interval", "interval must be positive, got %s", c.Watch.Interval)
	}
	return nil
}

// ParseLevel converts a log level name into a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, configErr("log_level", "unknown log level %q (debug|info|warn|error)", s)
	}
	return level, nil
}

// ParseLevelOrInfo is ParseLevel falling back to info.
func ParseLevelOrInfo(s string) slog.Level {
	level, err := ParseLevel(s)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func configErr(key, format string, args ...any) error {
	return core.Errorf(core.KindConfiguration, "validate config", key, format, args...)
}
