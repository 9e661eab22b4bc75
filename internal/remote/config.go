package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
)

// Backend type names.
const (
	TypeFTP  = "ftp"
	TypeSFTP = "sftp"
	TypeS3   = "s3"
	TypeFile = "file"
)

// DefaultTimeout bounds each remote operation when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// Config selects and configures a remote backend.
type Config struct {
	Type     string `koanf:"type" yaml:"type"`
	Host     string `koanf:"host" yaml:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port,omitempty"`
	User     string `koanf:"user" yaml:"user,omitempty"`
	Password string `koanf:"password" yaml:"password,omitempty"`

	// SFTP
	KeyFile    string `koanf:"key_file" yaml:"key_file,omitempty"`
	KnownHosts string `koanf:"known_hosts" yaml:"known_hosts,omitempty"`

	// S3
	Bucket    string `koanf:"bucket" yaml:"bucket,omitempty"`
	Region    string `koanf:"region" yaml:"region,omitempty"`
	AccessKey string `koanf:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `koanf:"secret_key" yaml:"secret_key,omitempty"`
	UseSSL    bool   `koanf:"use_ssl" yaml:"use_ssl,omitempty"`

	// Timeout bounds each list, fetch or delete call. Zero uses DefaultTimeout,
	// a negative value disables the bound.
	Timeout time.Duration `koanf:"timeout" yaml:"-"`
	// RateLimit caps remote operations per second. Zero means unlimited.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit,omitempty"`
}

// Validate checks the fields the selected backend needs.
func (c *Config) Validate() error {
	typ := strings.ToLower(c.Type)
	if typ == "" {
		return core.Errorf(core.KindConfiguration, "validate remote", "", "remote type is required")
	}
	if !IsRegistered(typ) {
		return core.Wrap(core.KindConfiguration, "validate remote", "", &UnknownTypeError{Type: c.Type, Available: ListTypes()})
	}

	switch typ {
	case TypeFTP, TypeSFTP:
		if c.Host == "" {
			return core.Errorf(core.KindConfiguration, "validate remote", "", "%s remote requires host", typ)
		}
	case TypeS3:
		if c.Host == "" || c.Bucket == "" {
			return core.Errorf(core.KindConfiguration, "validate remote", "", "s3 remote requires host and bucket")
		}
		if c.AccessKey == "" || c.SecretKey == "" {
			return core.Errorf(core.KindConfiguration, "validate remote", "", "s3 remote requires access_key and secret_key")
		}
	}

	if c.Port < 0 || c.Port > 65535 {
		return core.Errorf(core.KindConfiguration, "validate remote", "", "port %d out of range", c.Port)
	}
	if c.RateLimit < 0 {
		return core.Errorf(core.KindConfiguration, "validate remote", "", "rate_limit must not be negative")
	}
	return nil
}

// EffectiveTimeout resolves the configured timeout.
func (c *Config) EffectiveTimeout() time.Duration {
	switch {
	case c.Timeout == 0:
		return DefaultTimeout
	case c.Timeout < 0:
		return 0
	default:
		return c.Timeout
	}
}

// Address returns host:port, using defaultPort when none is set.
func (c *Config) Address(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	if c.SecretKey != "" {
		c.SecretKey = "********"
	}
	return c
}

// MarshalYAML renders the timeout as a duration string.
func (c Config) MarshalYAML() (interface{}, error) {
	type plain Config
	out := struct {
		plain   `yaml:",inline"`
		Timeout string `yaml:"timeout,omitempty"`
	}{plain: plain(c)}
	if c.Timeout != 0 {
		out.Timeout = c.Timeout.String()
	}
	return out, nil
}
