package commands

import (
	"github.com/ic3tools/enfetch/internal/cli/config"
	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Print the configuration after defaults, the config file, ENFETCH_*
environment variables and flags have been applied. Passwords and secret
keys are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutRemote(cmd)
			if err != nil {
				return err
			}
			redacted := cmdCtx.Cfg.Redacted()

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(redacted)
			}
			if path := config.GetConfigFileUsed(); path != "" {
				r.Printf("# %s\n", path)
			}
			enc := yaml.NewEncoder(r.Writer())
			enc.SetIndent(2)
			if err := enc.Encode(redacted); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
