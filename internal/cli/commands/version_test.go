package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_Text(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut []string
	}{
		{"release", "0.1.0", []string{"enfetch v0.1.0", "commit abc123, built 2026-01-01"}},
		{"dev build", "dev", []string{"enfetch vdev"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version, "abc123", "2026-01-01")
			var buf bytes.Buffer
			cmd.SetOut(&buf)
			cmd.SetArgs(nil)

			require.NoError(t, cmd.Execute())
			for _, want := range tt.wantOut {
				assert.Contains(t, buf.String(), want)
			}
			assert.Contains(t, buf.String(), "state schema 1, remotes: file, ftp, s3, sftp")
		})
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	root := &cobra.Command{Use: "enfetch"}
	root.PersistentFlags().StringP("output", "o", "", "")
	root.AddCommand(NewVersionCommand("1.2.3", "abc123", "2026-01-01"))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "-o", "json"})
	require.NoError(t, root.Execute())

	var info VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, VersionInfo{
		Version:       "1.2.3",
		Commit:        "abc123",
		BuildDate:     "2026-01-01",
		SchemaVersion: 1,
		Remotes:       []string{"file", "ftp", "s3", "sftp"},
	}, info)
}
