// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/ic3tools/enfetch/internal/cli/output"
	"github.com/stretchr/testify/require"
)

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// Project is a throwaway enfetch setup: a local directory standing in for
// the remote store, a download root and a config file wiring them.
type Project struct {
	Dir        string
	RemoteDir  string
	LocalRoot  string
	ConfigPath string
}

// SetupTestProject writes an enfetch.yaml using the file backend. The
// single input "ens" reads RemoteDir/ens and writes LocalRoot/YEAR/MONTH/DAY.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	dir := t.TempDir()
	p := &Project{
		Dir:        dir,
		RemoteDir:  filepath.Join(dir, "remote"),
		LocalRoot:  filepath.Join(dir, "data"),
		ConfigPath: filepath.Join(dir, "enfetch.yaml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(p.RemoteDir, "ens"), 0o755))

	cfg := "inputs:\n" +
		"  - name: ens\n" +
		"    description: ensemble forecast\n" +
		"    remote_path: " + filepath.ToSlash(filepath.Join(p.RemoteDir, "ens")) + "\n" +
		"    local_path: " + filepath.ToSlash(filepath.Join(p.LocalRoot, "YEAR", "MONTH", "DAY")) + "\n" +
		"remote:\n" +
		"  type: file\n" +
		"state_path: state/enfetch.db\n"
	require.NoError(t, os.WriteFile(p.ConfigPath, []byte(cfg), 0o600))
	return p
}

// AddRemoteFiles creates remote files for input "ens", each holding its own name.
func (p *Project) AddRemoteFiles(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(p.RemoteDir, "ens", name), []byte(name), 0o644))
	}
}

// RemoteFiles lists what remains in the remote directory of input "ens".
func (p *Project) RemoteFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(p.RemoteDir, "ens"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
