package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ic3tools/enfetch/internal/cli/config"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/engine"
	"github.com/ic3tools/enfetch/internal/remote"
	"github.com/ic3tools/enfetch/internal/server"
	"github.com/ic3tools/enfetch/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// reloadDebounce coalesces the burst of events an editor produces on save.
const reloadDebounce = 500 * time.Millisecond

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Inputs []string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run passes periodically until interrupted",
		Long: `Run a pass over the configured inputs every interval until SIGINT or
SIGTERM.

Only one enfetch process may transfer at a time; watch holds the lock file
for its whole lifetime. Edits to the config file are picked up before the
next pass. With --listen, a status endpoint serves /healthz and /passes.`,
		Example: `  # Poll every 15 minutes (the default)
  enfetch watch

  # Poll every 5 minutes and expose the status endpoint
  enfetch watch --interval 5m --listen :8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Inputs, "input", "i", nil, "Input to process (repeatable, default: all)")
	cmd.Flags().Duration("interval", 0, "Time between passes (default 15m)")
	cmd.Flags().String("listen", "", "Serve /healthz and /passes on this address")
	cmd.Flags().String("lock-file", "", "Single-instance lock file")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	release, err := acquireLock(cmdCtx.Cfg.Watch.LockFile)
	if err != nil {
		return err
	}
	defer release()

	w := newWatcher(cmdCtx, opts.Inputs, cmd.Flags())
	defer w.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.poll(gctx) })

	if addr := cmdCtx.Cfg.Watch.Listen; addr != "" {
		srv := server.New(server.Config{
			Addr:    addr,
			Store:   w.store,
			Tracker: w.tracker,
			Logger:  cmdCtx.Logger,
		})
		g.Go(func() error { return srv.Serve(gctx) })
	}

	if path := config.GetConfigFileUsed(); path != "" {
		g.Go(func() error { return w.watchConfig(gctx, path) })
	}

	cmdCtx.Logger.Info("watching", "interval", cmdCtx.Cfg.Watch.Interval, "inputs", len(cmdCtx.Cfg.Inputs))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	cmdCtx.Logger.Info("stopped")
	return nil
}

// watcher runs passes on a ticker. The config, client and ticker are owned
// by the poll goroutine; reloads reach it through the reloads channel.
type watcher struct {
	cfg     *config.Config
	client  core.RemoteClient
	store   state.Store
	inputs  []string
	flags   *pflag.FlagSet
	tracker *server.Tracker
	logger  *slog.Logger
	reloads chan *config.Config
	// clientOwned is set once client was built by the watcher itself.
	clientOwned bool
}

func newWatcher(cmdCtx *CommandContext, inputs []string, flags *pflag.FlagSet) *watcher {
	w := &watcher{
		cfg:     cmdCtx.Cfg,
		client:  cmdCtx.Client,
		inputs:  inputs,
		flags:   flags,
		tracker: server.NewTracker(),
		logger:  cmdCtx.Logger,
		reloads: make(chan *config.Config, 1),
	}
	if cmdCtx.Store != nil {
		w.store = cmdCtx.Store
	}
	return w
}

func (w *watcher) close() {
	if w.clientOwned {
		_ = w.client.Close()
	}
}

// poll runs a pass immediately and then on every tick until ctx ends.
func (w *watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Watch.Interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg := <-w.reloads:
			if w.apply(cfg) {
				ticker.Reset(w.cfg.Watch.Interval)
			}
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce runs one pass per input. Failures are logged by the engine and
// never stop the loop.
func (w *watcher) runOnce(ctx context.Context) []*engine.Pass {
	engines, err := buildEngines(w.cfg, w.client, w.store, w.logger, w.inputs)
	if err != nil {
		w.logger.Error("cannot build passes", "error", err)
		return nil
	}

	passes := make([]*engine.Pass, 0, len(engines))
	for _, eng := range engines {
		if ctx.Err() != nil {
			break
		}
		pass := eng.Run(ctx, false)
		passes = append(passes, pass)
		w.tracker.Record(trackerStatus(pass))
	}
	return passes
}

func trackerStatus(p *engine.Pass) server.InputStatus {
	st := server.InputStatus{
		Input:       p.Input,
		Status:      string(p.Status()),
		Complete:    len(p.Complete),
		InProgress:  len(p.InProgress),
		Transferred: len(p.Transferred),
		FinishedAt:  p.StartedAt.Add(p.Duration),
	}
	if p.Err != nil {
		st.Error = p.Err.Error()
	}
	return st
}

// apply switches to a reloaded configuration. The old configuration stays
// in effect when the new remote cannot be built.
func (w *watcher) apply(cfg *config.Config) bool {
	client, err := remote.New(cfg.Remote, w.logger)
	if err != nil {
		w.logger.Error("reloaded configuration rejected", "error", err)
		return false
	}
	if w.clientOwned {
		_ = w.client.Close()
	}
	w.cfg = cfg
	w.client = client
	w.clientOwned = true
	w.logger.Info("configuration reloaded", "interval", cfg.Watch.Interval, "inputs", len(cfg.Inputs))
	return true
}

// watchConfig reloads the config file whenever it changes. It watches the
// parent directory so that a file replaced by rename is still seen.
func (w *watcher) watchConfig(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload(path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// reload loads path and hands the result to the poll goroutine, replacing
// any reload it has not picked up yet.
func (w *watcher) reload(path string) {
	cfg, err := config.LoadConfig(path, w.flags)
	if err != nil {
		w.logger.Error("config reload failed, keeping current configuration", "path", path, "error", err)
		return
	}
	for {
		select {
		case w.reloads <- cfg:
			return
		case <-w.reloads:
		}
	}
}
