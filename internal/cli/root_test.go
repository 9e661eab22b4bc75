package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ic3tools/enfetch/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int
		wantOut string
	}{
		{"success", nil, ExitOK, ""},
		{"transient", fmt.Errorf("input ens: %w", core.Errorf(core.KindConnectivity, "list", "/ens", "timeout")), ExitOK, "Warning:"},
		{"configuration", core.Errorf(core.KindConfiguration, "validate config", "inputs", "missing"), ExitConfig, "Error:"},
		{"consistency", core.Errorf(core.KindConsistency, "reconcile", "140201", "too many outputs"), ExitFailure, "Error:"},
		{"unclassified", errors.New("boom"), ExitFailure, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, cleanup := NewRootCmd()
			defer cleanup()
			var errOut bytes.Buffer
			cmd.SetErr(&errOut)

			assert.Equal(t, tt.want, exitCode(cmd, tt.err))
			if tt.wantOut == "" {
				assert.Empty(t, errOut.String())
			} else {
				assert.Contains(t, errOut.String(), tt.wantOut)
			}
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	cmd, cleanup := NewRootCmd()
	defer cleanup()

	for _, name := range []string{"run", "watch", "status", "history", "jobs", "config", "doctor", "version", "completion"} {
		sub, _, err := cmd.Find([]string{name})
		assert.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"config", "state", "log-level", "log-file", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}
