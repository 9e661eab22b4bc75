// Package cli provides the command-line interface for enfetch.
package cli

import (
	"context"
	"fmt"

	"github.com/ic3tools/enfetch/internal/cli/commands"
	"github.com/ic3tools/enfetch/internal/cli/config"
	"github.com/ic3tools/enfetch/internal/core"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitConfig is returned when the configuration is unusable.
	ExitConfig = 2
)

// NewRootCmd creates and returns the root command. Closing the log file
// opened during command setup is left to the returned cleanup.
func NewRootCmd() (*cobra.Command, func()) {
	logCleanup := func() error { return nil }

	rootCmd := &cobra.Command{
		Use:   "enfetch",
		Short: "enfetch - fetch finished simulation runs from a remote store",
		Long: `enfetch polls a remote store for simulation outputs, downloads every run
whose outputs are all present, and then deletes them from the remote.

A run is identified by its date; it is transferred only once every scheduled
output file exists, so runs still being written are left alone.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help, completion and version commands
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger, cleanup, err := config.SetupLogger(cmd.ErrOrStderr(), config.ParseLevelOrInfo(cfg.LogLevel), cfg.LogFile)
			if err != nil {
				return core.Wrap(core.KindConfiguration, "setup logger", cfg.LogFile, err)
			}
			logCleanup = cleanup

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(config.WithLogger(ctx, logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./enfetch.yaml)")
	rootCmd.PersistentFlags().String("state", "", "Path to state database")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewJobsCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd, func() { _ = logCleanup() }
}

// Execute runs the root command with args and returns the process exit
// code. Transient failures (the remote was unreachable) exit zero: the next
// pass retries.
func Execute(ctx context.Context, args []string) int {
	rootCmd, cleanup := NewRootCmd()
	defer cleanup()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return exitCode(rootCmd, err)
}

func exitCode(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitOK
	}
	if core.IsTransient(err) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		return ExitOK
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	if core.IsKind(err, core.KindConfiguration) {
		return ExitConfig
	}
	return ExitFailure
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for enfetch.

To load completions:

Bash:
  $ source <(enfetch completion bash)

  # To load completions for each session, execute once:
  $ enfetch completion bash > /etc/bash_completion.d/enfetch

Zsh:
  $ enfetch completion zsh > "${fpath[1]}/_enfetch"

Fish:
  $ enfetch completion fish > ~/.config/fish/completions/enfetch.fish

PowerShell:
  PS> enfetch completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
