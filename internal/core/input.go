package core

import (
	"strings"
	"time"
)

// Placeholders substituted into a local path template.
const (
	PlaceholderYear  = "YEAR"
	PlaceholderMonth = "MONTH"
	PlaceholderDay   = "DAY"
)

// Input is a named data source: where run outputs appear remotely and where
// they are stored locally for a given simulation date.
type Input interface {
	Name() string
	Description() string
	RemotePath() string
	LocalPath(date time.Time) string
}

// InputConfig is the configuration-backed Input.
type InputConfig struct {
	InputName        string `koanf:"name" yaml:"name"`
	InputDescription string `koanf:"description" yaml:"description"`
	Remote           string `koanf:"remote_path" yaml:"remote_path"`
	LocalTemplate    string `koanf:"local_path" yaml:"local_path"`
}

// NewInput validates and returns an Input. Missing paths are configuration
// errors.
func NewInput(name, description, remotePath, localPath string) (*InputConfig, error) {
	in := &InputConfig{
		InputName:        name,
		InputDescription: description,
		Remote:           remotePath,
		LocalTemplate:    localPath,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate checks that the input can be used for a pass.
func (c *InputConfig) Validate() error {
	if strings.TrimSpace(c.InputName) == "" {
		return Errorf(KindConfiguration, "validate input", "", "input name is required")
	}
	if strings.TrimSpace(c.Remote) == "" {
		return Errorf(KindConfiguration, "validate input", c.InputName, "remote_path is required")
	}
	if strings.TrimSpace(c.LocalTemplate) == "" {
		return Errorf(KindConfiguration, "validate input", c.InputName, "local_path is required")
	}
	return nil
}

func (c *InputConfig) Name() string        { return c.InputName }
func (c *InputConfig) Description() string { return c.InputDescription }

// RemotePath returns the remote directory without a trailing slash.
func (c *InputConfig) RemotePath() string {
	p := strings.TrimRight(c.Remote, "/")
	if p == "" {
		return "/"
	}
	return p
}

// LocalPath substitutes YEAR, MONTH and DAY in the template with the date's
// 4-digit year, 2-digit month and 2-digit day.
func (c *InputConfig) LocalPath(date time.Time) string {
	return ExpandPathTemplate(c.LocalTemplate, date)
}

// ExpandPathTemplate performs the YEAR/MONTH/DAY substitution.
func ExpandPathTemplate(template string, date time.Time) string {
	r := strings.NewReplacer(
		PlaceholderYear, date.Format("2006"),
		PlaceholderMonth, date.Format("01"),
		PlaceholderDay, date.Format("02"),
	)
	return r.Replace(template)
}
