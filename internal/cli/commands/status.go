package commands

import (
	"fmt"
	"strings"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/runs"
	"github.com/spf13/cobra"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Inputs []string
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the runs currently on the remote",
		Long: `List each input's remote directory and show every run found there, with
the outputs observed so far and those still missing. Nothing is transferred.`,
		Example: `  # All inputs
  enfetch status

  # One input as JSON
  enfetch status --input ens -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Inputs, "input", "i", nil, "Input to inspect (repeatable, default: all)")

	return cmd
}

// runStatusRow is one run of one input.
type runStatusRow struct {
	Input    string   `json:"input"`
	Key      string   `json:"run"`
	Date     string   `json:"date"`
	Status   string   `json:"status"`
	Job      string   `json:"job_status"`
	Observed []string `json:"observed"`
	Missing  []string `json:"missing"`
	Expected int      `json:"expected"`
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	engines, err := cmdCtx.Engines(opts.Inputs)
	if err != nil {
		return err
	}

	rows := []runStatusRow{}
	for _, eng := range engines {
		complete, inProgress, err := eng.Inspect(cmd.Context())
		if err != nil {
			return fmt.Errorf("input %s: %w", eng.Input().Name(), err)
		}
		for _, d := range append(complete, inProgress...) {
			rows = append(rows, newRunStatusRow(eng.Input().Name(), d))
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rows)
	}

	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.Input,
			row.Key,
			row.Date,
			row.Status,
			fmt.Sprintf("%d/%d", len(row.Observed), row.Expected),
			strings.Join(row.Missing, " "),
			row.Job,
		})
	}
	r.Table([]string{"Input", "Run", "Date", "Status", "Outputs", "Missing", "Job"}, table)
	return nil
}

func newRunStatusRow(input string, d *runs.Descriptor) runStatusRow {
	row := runStatusRow{
		Input:    input,
		Key:      d.Key,
		Date:     d.Date.Format("2006-01-02"),
		Status:   string(d.Status),
		Job:      d.JobStatus(),
		Observed: d.Observed,
		Missing:  d.Missing,
		Expected: len(d.FileNames),
	}
	if row.Observed == nil {
		row.Observed = []string{}
	}
	if row.Missing == nil {
		row.Missing = []string{}
	}
	return row
}
