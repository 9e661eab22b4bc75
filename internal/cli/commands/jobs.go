package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/ecaccess"
	"github.com/spf13/cobra"
)

// NewJobsCommand creates the jobs command backed by the ECaccess tools on
// PATH.
func NewJobsCommand() *cobra.Command {
	return newJobsCommand(ecaccess.ExecRunner{})
}

func newJobsCommand(runner ecaccess.Runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage the batch jobs producing simulation runs",
		Long: `List, submit and delete the batch jobs that produce simulation outputs,
using the ECaccess command line tools.`,
	}

	cmd.AddCommand(newJobsListCommand(runner))
	cmd.AddCommand(newJobsSubmitCommand(runner))
	cmd.AddCommand(newJobsDeleteCommand(runner))
	cmd.AddCommand(newJobsFilesCommand(runner))
	return cmd
}

func newJobsListCommand(runner ecaccess.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs and the run each one produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutRemote(cmd)
			if err != nil {
				return err
			}
			schedule, err := cmdCtx.Cfg.BuildSchedule()
			if err != nil {
				return err
			}

			jobs, err := ecaccess.NewClient(runner, cmdCtx.Logger).ListJobs(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				type jobReport struct {
					*ecaccess.Job
					RunKey  string   `json:"run"`
					Outputs []string `json:"outputs"`
				}
				reports := make([]jobReport, len(jobs))
				for i, j := range jobs {
					reports[i] = jobReport{Job: j, RunKey: j.RunKey(), Outputs: j.OutputFileNames(schedule)}
				}
				return r.JSON(reports)
			}

			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					strconv.Itoa(j.ID),
					string(j.Status),
					j.Status.Description(),
					j.Submitted.Format("2006-01-02 15:04"),
					j.Queue,
					j.Script,
					j.RunKey(),
				})
			}
			r.Table([]string{"ID", "Status", "Description", "Submitted", "Queue", "Script", "Run"}, rows)
			return nil
		},
	}
}

func newJobsSubmitCommand(runner ecaccess.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <script>",
		Short: "Submit a job script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContextWithoutRemote(cmd)
			if err != nil {
				return err
			}
			id, err := ecaccess.NewClient(runner, cmdCtx.Logger).Submit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cmdCtx.Renderer.EffectiveMode() == output.ModeJSON {
				return cmdCtx.Renderer.JSON(map[string]any{"job_id": id, "script": args[0]})
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Submitted %s as job %d", args[0], id))
			return nil
		},
	}
}

func newJobsDeleteCommand(runner ecaccess.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id < 0 {
				return core.Errorf(core.KindConfiguration, "jobs delete", args[0], "job id must be a non-negative integer")
			}
			cmdCtx, err := NewCommandContextWithoutRemote(cmd)
			if err != nil {
				return err
			}
			if err := ecaccess.NewClient(runner, cmdCtx.Logger).Delete(cmd.Context(), id); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Deleted job %d", id))
			return nil
		},
	}
}

func newJobsFilesCommand(runner ecaccess.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "files <dir>",
		Short: "List files in an ECaccess directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContextWithoutRemote(cmd)
			if err != nil {
				return err
			}
			files, err := ecaccess.NewClient(runner, cmdCtx.Logger).FileDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cmdCtx.Renderer.EffectiveMode() == output.ModeJSON {
				if files == nil {
					files = []string{}
				}
				return cmdCtx.Renderer.JSON(files)
			}
			if len(files) > 0 {
				cmdCtx.Renderer.Println(strings.Join(files, "\n"))
			}
			return nil
		},
	}
}
