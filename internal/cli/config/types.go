// Package config provides configuration management for the enfetch CLI.
package config

import (
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/remote"
	"github.com/ic3tools/enfetch/internal/runs"
)

// Config holds all CLI configuration options.
type Config struct {
	Inputs    []core.InputConfig `koanf:"inputs" yaml:"inputs"`
	Remote    remote.Config      `koanf:"remote" yaml:"remote"`
	Schedule  ScheduleConfig     `koanf:"schedule" yaml:"schedule"`
	StatePath string             `koanf:"state_path" yaml:"state_path"`
	LogLevel  string             `koanf:"log_level" yaml:"log_level"`
	LogFile   string             `koanf:"log_file" yaml:"log_file,omitempty"`
	Output    string             `koanf:"output" yaml:"output"`
	Watch     WatchConfig        `koanf:"watch" yaml:"watch"`
}

// ScheduleConfig describes the expected output file names.
type ScheduleConfig struct {
	Prefix   string   `koanf:"prefix" yaml:"prefix"`
	Suffixes []string `koanf:"suffixes" yaml:"suffixes"`
}

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	Interval time.Duration `koanf:"interval" yaml:"-"`
	LockFile string        `koanf:"lock_file" yaml:"lock_file"`
	// Listen enables the status server on this address when set.
	Listen string `koanf:"listen" yaml:"listen,omitempty"`
}

// MarshalYAML renders the interval as a duration string.
func (w WatchConfig) MarshalYAML() (interface{}, error) {
	type plain WatchConfig
	return struct {
		plain    `yaml:",inline"`
		Interval string `yaml:"interval"`
	}{plain(w), w.Interval.String()}, nil
}

// Default configuration values.
const (
	DefaultStateFile = ".enfetch/state.db"
	DefaultLockFile  = ".enfetch/enfetch.lock"
	DefaultLogLevel  = "info"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultInterval  = 15 * time.Minute
)

// BuildSchedule returns the run schedule described by the configuration.
func (c *Config) BuildSchedule() (*runs.Schedule, error) {
	return runs.NewSchedule(c.Schedule.Prefix, c.Schedule.Suffixes)
}

// Input returns the input named name.
func (c *Config) Input(name string) (*core.InputConfig, bool) {
	for i := range c.Inputs {
		if c.Inputs[i].InputName == name {
			return &c.Inputs[i], true
		}
	}
	return nil, false
}

// SelectInputs returns the named inputs, or all inputs when names is empty.
func (c *Config) SelectInputs(names []string) ([]*core.InputConfig, error) {
	if len(names) == 0 {
		out := make([]*core.InputConfig, len(c.Inputs))
		for i := range c.Inputs {
			out[i] = &c.Inputs[i]
		}
		return out, nil
	}
	out := make([]*core.InputConfig, 0, len(names))
	for _, name := range names {
		in, ok := c.Input(name)
		if !ok {
			return nil, core.Errorf(core.KindConfiguration, "select input", name, "unknown input %q", name)
		}
		out = append(out, in)
	}
	return out, nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.Remote = c.Remote.Redacted()
	return c
}
