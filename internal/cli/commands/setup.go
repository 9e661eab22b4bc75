package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/ic3tools/enfetch/internal/cli/config"
	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/engine"
	"github.com/ic3tools/enfetch/internal/remote"
	"github.com/ic3tools/enfetch/internal/runs"
	"github.com/ic3tools/enfetch/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Client   core.RemoteClient
	// Store is nil when the state database could not be opened.
	Store *state.SQLiteStore
}

// NewCommandContext creates a CommandContext with a remote client, the
// state store and a renderer. Returns the context and a cleanup function
// that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutRemote(cmd)
	if err != nil {
		return nil, nil, err
	}

	client, err := remote.New(cmdCtx.Cfg.Remote, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Client = client

	// A missing store only disables history.
	store, err := openStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		cmdCtx.Logger.Warn("state database unavailable, history will not be recorded", "path", cmdCtx.Cfg.StatePath, "error", err)
	} else {
		cmdCtx.Store = store
	}

	cleanup := func() {
		_ = client.Close()
		if cmdCtx.Store != nil {
			_ = cmdCtx.Store.Close()
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutRemote creates a CommandContext with only the
// configuration, logger and renderer.
func NewCommandContextWithoutRemote(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}, nil
}

// Engines builds one engine per selected input, all sharing the context's
// remote client and store.
func (c *CommandContext) Engines(names []string) ([]*engine.Engine, error) {
	var store state.Store
	if c.Store != nil {
		store = c.Store
	}
	return buildEngines(c.Cfg, c.Client, store, c.Logger, names)
}

func buildEngines(cfg *config.Config, client core.RemoteClient, store state.Store, logger *slog.Logger, names []string) ([]*engine.Engine, error) {
	inputs, err := cfg.SelectInputs(names)
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.BuildSchedule()
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, "build schedule", "schedule", err)
	}

	engines := make([]*engine.Engine, 0, len(inputs))
	for _, in := range inputs {
		eng, err := engine.New(engine.Config{
			Input:    in,
			Client:   client,
			Schedule: schedule,
			Store:    store,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		engines = append(engines, eng)
	}
	return engines, nil
}

// Helper functions shared across commands

// getConfig returns the configuration loaded by the root command.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return nil, core.Errorf(core.KindConfiguration, "load config", "", "no configuration loaded")
}

// openStore opens the state database, creating its directory first.
func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, core.Wrap(core.KindIO, "create state directory", dir, err)
		}
	}
	return state.OpenStore(path, logger)
}

// acquireLock takes the single-instance lock at path without blocking. The
// returned release must be called once the work is done.
func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, core.Wrap(core.KindIO, "create lock directory", path, err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, core.Wrap(core.KindIO, "lock", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another enfetch process holds the lock %s", path)
	}
	return func() { _ = lock.Unlock() }, nil
}

// runKeys reduces runs to their keys for reports.
func runKeys(ds []*runs.Descriptor) []string {
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = d.Key
	}
	return keys
}
