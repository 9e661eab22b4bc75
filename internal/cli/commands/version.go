package commands

import (
	"strings"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/ic3tools/enfetch/internal/remote"
	"github.com/ic3tools/enfetch/internal/state"
	"github.com/spf13/cobra"
)

// VersionInfo describes the build and what it is compatible with.
type VersionInfo struct {
	Version       string   `json:"version"`
	Commit        string   `json:"commit"`
	BuildDate     string   `json:"build_date"`
	SchemaVersion int64    `json:"schema_version"`
	Remotes       []string `json:"remotes"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the enfetch version, the state database schema it migrates to
and the remote backends compiled in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := state.SchemaVersion()
			if err != nil {
				return err
			}
			info := VersionInfo{
				Version:       version,
				Commit:        commit,
				BuildDate:     buildDate,
				SchemaVersion: schema,
				Remotes:       remote.ListTypes(),
			}

			// version runs without a config, so only the flag selects the mode.
			mode := output.ModeText
			if f := cmd.Flag("output"); f != nil {
				mode = output.Mode(f.Value.String())
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(info)
			}

			r.Printf("enfetch v%s\n", info.Version)
			r.Printf("commit %s, built %s\n", info.Commit, info.BuildDate)
			r.Printf("state schema %d, remotes: %s\n", info.SchemaVersion, strings.Join(info.Remotes, ", "))
			return nil
		},
	}
}
