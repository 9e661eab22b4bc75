// Package remote provides the backends that list, fetch and delete files in
// the remote store: FTP, SFTP, S3-compatible object storage and a plain
// directory.
package remote

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ic3tools/enfetch/internal/core"
)

// Factory builds a backend from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (core.RemoteClient, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a backend factory to the registry.
// Called by backend implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// Get retrieves a backend factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// ListTypes returns all registered backend names (sorted).
func ListTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend type is registered.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// New validates cfg and builds the backend, wrapped with the configured
// timeout and rate limit. A nil logger discards.
func New(cfg Config, logger *slog.Logger) (core.RemoteClient, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory, _ := Get(cfg.Type)
	client, err := factory(cfg, logger.With(slog.String("remote", strings.ToLower(cfg.Type))))
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, "create remote", cfg.Type, err)
	}
	return Guard(client, cfg.EffectiveTimeout(), cfg.RateLimit), nil
}

// UnknownTypeError is returned when an unknown backend type is requested.
type UnknownTypeError struct {
	Type      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown remote type %q\nAvailable remotes: %v\nHint: Check remote.type in enfetch.yaml", e.Type, e.Available)
}
