package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ic3tools/enfetch/internal/cli/config"
	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/ic3tools/enfetch/internal/ecaccess"
	"github.com/ic3tools/enfetch/internal/remote"
	"github.com/spf13/cobra"
)

// Check statuses.
const (
	checkPass  = "pass"
	checkWarn  = "warn"
	checkError = "error"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Timeout time.Duration
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that enfetch can do its job",
		Long: `Check the deployment without transferring anything:
- Configuration (config file, inputs, schedule)
- Remote (each input's directory can be listed)
- Local (download directories are writable)
- State (the state database opens)
- Jobs (the ECaccess tools are on PATH)

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run all checks
  enfetch doctor

  # Output as JSON
  enfetch doctor -o json`,
		// A failed check is reported in the health report, not with usage.
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Limit for each remote check")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	HealthChecks []HealthCheck `json:"health_checks"`
	Score        int           `json:"score"`
	Errors       int           `json:"errors"`
	Warnings     int           `json:"warnings"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Status  string   `json:"status"` // "pass", "warn", "error"
	Details []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cmdCtx, err := NewCommandContextWithoutRemote(cmd)
	if err != nil {
		return err
	}

	out := buildDoctorOutput(cmd.Context(), cmdCtx, opts)

	r := cmdCtx.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	case output.ModeMarkdown:
		renderDoctorMarkdown(r, out)
	default:
		renderDoctorText(r, out)
	}

	if out.Errors > 0 {
		return fmt.Errorf("%d of %d checks failed", out.Errors, len(out.HealthChecks))
	}
	return nil
}

func buildDoctorOutput(ctx context.Context, cmdCtx *CommandContext, opts *DoctorOptions) *DoctorOutput {
	var checks []HealthCheck
	checks = append(checks, checkConfiguration(cmdCtx.Cfg))
	checks = append(checks, checkRemote(ctx, cmdCtx, opts.Timeout)...)
	checks = append(checks, checkLocal(cmdCtx.Cfg)...)
	checks = append(checks, checkState(cmdCtx))
	checks = append(checks, checkJobTools())

	out := &DoctorOutput{HealthChecks: checks}
	for _, c := range checks {
		switch c.Status {
		case checkError:
			out.Errors++
		case checkWarn:
			out.Warnings++
		}
	}
	out.Score = calculateHealthScore(checks)
	return out
}

func checkConfiguration(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "configuration loaded", Group: "configuration", Status: checkPass}
	if path := config.GetConfigFileUsed(); path != "" {
		check.Details = append(check.Details, "file: "+path)
	} else {
		check.Status = checkWarn
		check.Details = append(check.Details, "no config file, using environment and flags only")
	}
	check.Details = append(check.Details,
		fmt.Sprintf("%d inputs, remote type %s", len(cfg.Inputs), cfg.Remote.Type),
		fmt.Sprintf("schedule %s %s", cfg.Schedule.Prefix, strings.Join(cfg.Schedule.Suffixes, " ")))
	return check
}

// checkRemote lists each input's remote directory once.
func checkRemote(ctx context.Context, cmdCtx *CommandContext, timeout time.Duration) []HealthCheck {
	cfg := cmdCtx.Cfg
	client, err := remote.New(cfg.Remote, cmdCtx.Logger)
	if err != nil {
		return []HealthCheck{{Name: "remote client", Group: "remote", Status: checkError, Details: []string{err.Error()}}}
	}
	defer client.Close()

	checks := make([]HealthCheck, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		check := HealthCheck{Name: "list " + in.Name(), Group: "remote", Status: checkPass}

		listCtx, cancel := context.WithTimeout(ctx, timeout)
		names, err := client.List(listCtx, in.RemotePath())
		cancel()

		switch {
		case err == nil:
			check.Details = []string{fmt.Sprintf("%s: %d files", in.RemotePath(), len(names))}
		case core.IsTransient(err):
			check.Status = checkWarn
			check.Details = []string{"unreachable: " + err.Error()}
		default:
			check.Status = checkError
			check.Details = []string{fmt.Sprintf("%s (%s)", err.Error(), core.KindOf(err))}
		}
		checks = append(checks, check)
	}
	return checks
}

// checkLocal verifies the nearest existing ancestor of each input's
// download directory accepts new directories.
func checkLocal(cfg *config.Config) []HealthCheck {
	today := time.Now().UTC()
	checks := make([]HealthCheck, 0, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		target := in.LocalPath(today)
		check := HealthCheck{Name: "write " + in.Name(), Group: "local", Status: checkPass}

		dir := nearestExistingDir(target)
		probe, err := os.MkdirTemp(dir, ".enfetch-doctor-")
		if err != nil {
			check.Status = checkError
			check.Details = []string{fmt.Sprintf("%s is not writable: %v", dir, err)}
		} else {
			_ = os.RemoveAll(probe)
			check.Details = []string{target}
		}
		checks = append(checks, check)
	}
	return checks
}

func nearestExistingDir(p string) string {
	for {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

func checkState(cmdCtx *CommandContext) HealthCheck {
	check := HealthCheck{Name: "state database", Group: "state", Status: checkPass}
	store, err := openStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		check.Status = checkWarn
		check.Details = []string{err.Error()}
		return check
	}
	defer store.Close()

	check.Details = []string{cmdCtx.Cfg.StatePath}
	if passes, err := store.ListPasses(1); err == nil && len(passes) > 0 {
		last := passes[0]
		check.Details = append(check.Details, fmt.Sprintf("last pass %s: %s (%s)", last.StartedAt.Local().Format("2006-01-02 15:04"), last.Status, last.Input))
	}
	return check
}

func checkJobTools() HealthCheck {
	check := HealthCheck{Name: "ECaccess tools", Group: "jobs", Status: checkPass}
	for _, tool := range []string{ecaccess.CmdJobList, ecaccess.CmdJobSubmit, ecaccess.CmdJobDelete, ecaccess.CmdFileDir} {
		if _, err := exec.LookPath(tool); err != nil {
			check.Status = checkWarn
			check.Details = append(check.Details, tool+" not found on PATH")
		}
	}
	return check
}

// calculateHealthScore starts at 100 and subtracts 25 per error and 10 per
// warning, never going below zero.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, c := range checks {
		switch c.Status {
		case checkError:
			score -= 25
		case checkWarn:
			score -= 10
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	r.Println("")
	r.Header(1, "enfetch Health Report")
	r.Muted(strings.Repeat("=", 55))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Header(2, "   "+titleCaser.String(currentGroup))
			r.Muted("   " + strings.Repeat("-", 40))
		}

		icon := "✓"
		switch check.Status {
		case checkWarn:
			icon = "!"
		case checkError:
			icon = "✗"
		}
		r.Printf("   %s %s\n", icon, check.Name)

		// Show first 3 details
		for i, detail := range check.Details {
			if i >= 3 {
				r.Muted(fmt.Sprintf("       ... and %d more", len(check.Details)-3))
				break
			}
			r.Muted("       - " + detail)
		}
	}
	r.Println("")

	r.Muted(strings.Repeat("=", 55))
	r.Printf("   Health Score: %d/100 (%d errors, %d warnings)\n", out.Score, out.Errors, out.Warnings)
	r.Println("")
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println(output.FormatHeader(1, "enfetch Health Report"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(output.FormatHeader(2, titleCaser.String(currentGroup)))
			r.Println("")
		}

		r.Printf("- **[%s]** %s\n", strings.ToUpper(check.Status), check.Name)
		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println("")
	r.Println(output.FormatKeyValue("Health Score", fmt.Sprintf("%d/100", out.Score)))
	r.Println(output.FormatKeyValue("Errors", fmt.Sprintf("%d", out.Errors)))
	r.Println(output.FormatKeyValue("Warnings", fmt.Sprintf("%d", out.Warnings)))
}
