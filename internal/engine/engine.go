// Package engine runs transfer passes: it lists an input's remote directory,
// reconciles the listing into runs, downloads every complete run to local
// storage and deletes the remote copies once the whole run is on disk.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/runs"
	"github.com/ic3tools/enfetch/internal/state"
)

// Engine transfers the runs of one input. Passes are sequential; callers must
// not run two passes of the same input concurrently.
type Engine struct {
	input      core.Input
	client     core.RemoteClient
	reconciler *runs.Reconciler

	// optional; nil disables pass history and the re-download check
	store state.Store

	logger *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Input names the remote directory and the local path template.
	Input core.Input
	// Client lists, fetches and deletes remote files.
	Client core.RemoteClient
	// Schedule is the expected output set (default schedule if nil).
	Schedule *runs.Schedule
	// Store records passes and transfer progress (optional).
	Store state.Store
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine. Missing collaborators are configuration errors.
func New(cfg Config) (*Engine, error) {
	if cfg.Input == nil {
		return nil, core.Errorf(core.KindConfiguration, "new engine", "", "input is required")
	}
	if v, ok := cfg.Input.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Client == nil {
		return nil, core.Errorf(core.KindConfiguration, "new engine", cfg.Input.Name(), "remote client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("input", cfg.Input.Name())

	return &Engine{
		input:      cfg.Input,
		client:     cfg.Client,
		reconciler: runs.NewReconciler(cfg.Schedule, logger),
		store:      cfg.Store,
		logger:     logger,
	}, nil
}

// Input returns the input this engine transfers.
func (e *Engine) Input() core.Input { return e.input }

// Pass is the report of one pass.
type Pass struct {
	// ID is the recorded pass id, empty when no store is configured.
	ID       string
	Input    string
	Simulate bool

	Complete   []*runs.Descriptor
	InProgress []*runs.Descriptor
	// Transferred holds the keys of runs downloaded and deleted in this pass.
	Transferred []string

	// Skipped is set when the remote could not be listed for a transient
	// reason; nothing was transferred.
	Skipped bool
	// Err is the failure that ended the pass early.
	Err error

	StartedAt time.Time
	Duration  time.Duration
}

// Status maps the pass outcome onto the recorded status.
func (p *Pass) Status() state.PassStatus {
	switch {
	case p.Err == nil:
		return state.PassStatusCompleted
	case p.Skipped || core.IsTransient(p.Err):
		return state.PassStatusSkipped
	default:
		return state.PassStatusFailed
	}
}

// Inspect lists the remote directory and reconciles it without transferring
// anything.
func (e *Engine) Inspect(ctx context.Context) (complete, inProgress []*runs.Descriptor, err error) {
	dir := e.input.RemotePath()
	names, err := e.client.List(ctx, dir)
	if err != nil {
		return nil, nil, core.Wrap(core.KindUnknown, "list", dir, err)
	}
	e.logger.Debug("listed remote directory", "remote_path", dir, "files", len(names))
	return e.reconciler.Reconcile(names)
}

// Run executes one pass. It never panics or returns an error for expected
// conditions: a transient listing failure yields a skipped pass, and any
// transfer failure stops the remaining runs and is reported in Pass.Err.
// With simulate set, the same control flow runs without touching local
// storage or deleting remote files.
func (e *Engine) Run(ctx context.Context, simulate bool) *Pass {
	pass := &Pass{
		Input:     e.input.Name(),
		Simulate:  simulate,
		StartedAt: time.Now(),
	}
	e.startPass(pass)
	defer e.finishPass(pass)

	e.logger.Info("analyzing remote outputs", "remote_path", e.input.RemotePath(), "simulate", simulate)

	complete, inProgress, err := e.Inspect(ctx)
	if err != nil {
		pass.Err = err
		if core.IsTransient(err) {
			pass.Skipped = true
			e.logger.Warn("remote unreachable, skipping pass", "error", err)
		} else {
			e.logger.Error("failed to analyze remote outputs", "error", err)
		}
		return pass
	}
	pass.Complete, pass.InProgress = complete, inProgress

	e.logger.Info("summary",
		"description", e.input.Description(),
		"completed_runs", len(complete),
		"running_runs", len(inProgress))

	for _, d := range complete {
		if err := ctx.Err(); err != nil {
			pass.Err = core.Wrap(core.KindConnectivity, "pass", e.input.Name(), err)
			return pass
		}
		if err := e.transferRun(ctx, pass, d); err != nil {
			pass.Err = err
			e.logger.Error("transfer failed, leaving remaining runs for the next pass",
				"run", d.Key, "kind", core.KindOf(err).String(), "error", err)
			return pass
		}
		pass.Transferred = append(pass.Transferred, d.Key)
	}

	// A run whose deletion stopped half way no longer lists as complete.
	for _, d := range inProgress {
		if !e.downloaded(d, e.input.LocalPath(d.Date)) {
			continue
		}
		done, err := e.resumeDeletion(ctx, pass, d)
		if err != nil {
			pass.Err = err
			e.logger.Error("deletion failed, leaving remaining runs for the next pass",
				"run", d.Key, "kind", core.KindOf(err).String(), "error", err)
			return pass
		}
		if done {
			pass.Transferred = append(pass.Transferred, d.Key)
		}
	}

	return pass
}

func (e *Engine) startPass(pass *Pass) {
	if e.store == nil {
		return
	}
	rec, err := e.store.StartPass(pass.Input, pass.Simulate)
	if err != nil {
		e.logger.Warn("failed to record pass start", "error", err)
		return
	}
	pass.ID = rec.ID
}

func (e *Engine) finishPass(pass *Pass) {
	pass.Duration = time.Since(pass.StartedAt)

	e.logger.Info("pass finished",
		"status", string(pass.Status()),
		"transferred_runs", len(pass.Transferred),
		"duration_ms", pass.Duration.Milliseconds())

	if e.store == nil || pass.ID == "" {
		return
	}
	errMsg := ""
	if pass.Err != nil {
		errMsg = pass.Err.Error()
	}
	counts := state.PassCounts{
		Complete:    len(pass.Complete),
		InProgress:  len(pass.InProgress),
		Transferred: len(pass.Transferred),
	}
	if err := e.store.CompletePass(pass.ID, pass.Status(), counts, errMsg); err != nil {
		e.logger.Warn("failed to record pass completion", "pass_id", pass.ID, "error", err)
	}
}

// setTransfer records run progress. Store failures are logged only.
func (e *Engine) setTransfer(pass *Pass, key string, st state.TransferState, cause error) {
	if e.store == nil || pass.Simulate || pass.ID == "" {
		return
	}
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := e.store.SetTransfer(pass.Input, key, st, pass.ID, errMsg); err != nil {
		e.logger.Warn("failed to record transfer state", "run", key, "state", string(st), "error", err)
	}
}
