package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/engine"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Inputs   []string
	Simulate bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over the configured inputs",
		Long: `List each input's remote directory, download every complete run into its
local directory and delete the run from the remote.

Runs still being written are left alone. When the remote cannot be reached
the pass is skipped and the command exits successfully; the next pass
retries.`,
		Example: `  # One pass over every input
  enfetch run

  # Only the ensemble input
  enfetch run --input ens

  # Report what would be transferred without touching anything
  enfetch run --simulate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Inputs, "input", "i", nil, "Input to process (repeatable, default: all)")
	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "Report complete runs without downloading or deleting")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.Simulate {
		release, err := acquireLock(cmdCtx.Cfg.Watch.LockFile)
		if err != nil {
			return err
		}
		defer release()
	}

	engines, err := cmdCtx.Engines(opts.Inputs)
	if err != nil {
		return err
	}

	passes := make([]*engine.Pass, 0, len(engines))
	for _, eng := range engines {
		passes = append(passes, eng.Run(cmd.Context(), opts.Simulate))
	}

	if err := renderPasses(cmdCtx.Renderer, passes); err != nil {
		return err
	}
	return passesError(passes)
}

// passesError returns the first failure, preferring a permanent one so the
// exit code reflects it.
func passesError(passes []*engine.Pass) error {
	var transient error
	for _, p := range passes {
		if p.Err == nil {
			continue
		}
		if !core.IsTransient(p.Err) {
			return fmt.Errorf("input %s: %w", p.Input, p.Err)
		}
		if transient == nil {
			transient = fmt.Errorf("input %s: %w", p.Input, p.Err)
		}
	}
	return transient
}

// passReport is the JSON shape of a pass.
type passReport struct {
	ID          string   `json:"id,omitempty"`
	Input       string   `json:"input"`
	Status      string   `json:"status"`
	Simulate    bool     `json:"simulate"`
	Complete    []string `json:"complete"`
	InProgress  []string `json:"in_progress"`
	Transferred []string `json:"transferred"`
	DurationMS  int64    `json:"duration_ms"`
	Error       string   `json:"error,omitempty"`
}

func newPassReport(p *engine.Pass) passReport {
	rep := passReport{
		ID:          p.ID,
		Input:       p.Input,
		Status:      string(p.Status()),
		Simulate:    p.Simulate,
		Complete:    runKeys(p.Complete),
		InProgress:  runKeys(p.InProgress),
		Transferred: p.Transferred,
		DurationMS:  p.Duration.Milliseconds(),
	}
	if rep.Transferred == nil {
		rep.Transferred = []string{}
	}
	if p.Err != nil {
		rep.Error = p.Err.Error()
	}
	return rep
}

func renderPasses(r *output.Renderer, passes []*engine.Pass) error {
	if r.EffectiveMode() == output.ModeJSON {
		reports := make([]passReport, len(passes))
		for i, p := range passes {
			reports[i] = newPassReport(p)
		}
		return r.JSON(reports)
	}

	rows := make([][]string, 0, len(passes))
	for _, p := range passes {
		transferred := strings.Join(p.Transferred, ", ")
		if p.Simulate {
			transferred = "(simulated) " + strings.Join(runKeys(p.Complete), ", ")
		}
		errMsg := ""
		if p.Err != nil {
			errMsg = p.Err.Error()
		}
		rows = append(rows, []string{
			p.Input,
			string(p.Status()),
			strconv.Itoa(len(p.Complete)),
			strconv.Itoa(len(p.InProgress)),
			transferred,
			p.Duration.Round(time.Millisecond).String(),
			errMsg,
		})
	}
	r.Table([]string{"Input", "Status", "Complete", "In progress", "Transferred", "Duration", "Error"}, rows)
	return nil
}
