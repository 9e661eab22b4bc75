package commands

import (
	"strconv"
	"time"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded passes",
		Long:  `Show the most recent passes recorded in the state database, newest first.`,
		Example: `  enfetch history
  enfetch history --limit 100 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of passes to show")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	if limit <= 0 {
		return core.Errorf(core.KindConfiguration, "history", "limit", "limit must be positive, got %d", limit)
	}

	cmdCtx, err := NewCommandContextWithoutRemote(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	passes, err := store.ListPasses(limit)
	if err != nil {
		return err
	}
	if passes == nil {
		passes = []*state.Pass{}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(passes)
	}

	rows := make([][]string, 0, len(passes))
	for _, p := range passes {
		duration := ""
		if p.CompletedAt != nil {
			duration = p.CompletedAt.Sub(p.StartedAt).Round(time.Millisecond).String()
		}
		mode := ""
		if p.Simulate {
			mode = "simulate"
		}
		rows = append(rows, []string{
			p.StartedAt.Local().Format("2006-01-02 15:04:05"),
			p.Input,
			string(p.Status),
			mode,
			strconv.Itoa(p.Complete),
			strconv.Itoa(p.InProgress),
			strconv.Itoa(p.Transferred),
			duration,
			p.Error,
		})
	}
	r.Table([]string{"Started", "Input", "Status", "Mode", "Complete", "In progress", "Transferred", "Duration", "Error"}, rows)
	return nil
}
