// Package ecaccess drives the ECaccess command line tools used to submit,
// list and delete the batch jobs that produce simulation outputs.
package ecaccess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ic3tools/enfetch/internal/core"
)

// Tool names.
const (
	CmdJobList   = "ecaccess-job-list"
	CmdJobSubmit = "ecaccess-job-submit"
	CmdJobDelete = "ecaccess-job-delete"
	CmdFileDir   = "ecaccess-file-dir"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name. A non-zero exit includes stderr in the error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Client wraps the ECaccess tools.
type Client struct {
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a client. A nil runner uses ExecRunner and a nil logger
// discards.
func NewClient(runner Runner, logger *slog.Logger) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{runner: runner, logger: logger, now: time.Now}
}

func (c *Client) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	c.logger.Debug("running command", "command", name, "args", args)
	out, err := c.runner.Run(ctx, name, args...)
	if err != nil {
		kind := core.KindUnknown
		switch {
		case errors.Is(err, exec.ErrNotFound):
			kind = core.KindConfiguration
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			kind = core.KindConnectivity
		}
		return nil, &core.Error{Kind: kind, Op: name, Err: err}
	}
	return out, nil
}

// ListJobs returns the jobs known to the gateway.
func (c *Client) ListJobs(ctx context.Context) ([]*Job, error) {
	out, err := c.run(ctx, CmdJobList)
	if err != nil {
		return nil, err
	}
	jobs, err := ParseJobList(string(out), c.now())
	if err != nil {
		return nil, err
	}
	c.logger.Debug("listed jobs", "count", len(jobs))
	return jobs, nil
}

// Submit submits script and returns the assigned job id.
func (c *Client) Submit(ctx context.Context, script string) (int, error) {
	if strings.TrimSpace(script) == "" {
		return 0, core.Errorf(core.KindConfiguration, CmdJobSubmit, "", "script is required")
	}
	out, err := c.run(ctx, CmdJobSubmit, script)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(out))
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Errorf(core.KindParse, CmdJobSubmit, script, "job id %q is not a number", raw)
	}
	c.logger.Info("job submitted", "script", script, "job_id", id)
	return id, nil
}

// Delete removes job id from the gateway.
func (c *Client) Delete(ctx context.Context, id int) error {
	if _, err := c.run(ctx, CmdJobDelete, strconv.Itoa(id)); err != nil {
		return err
	}
	c.logger.Info("job deleted", "job_id", id)
	return nil
}

// FileDir lists the ECaccess files matching pattern.
func (c *Client) FileDir(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, core.Errorf(core.KindConfiguration, CmdFileDir, "", "a directory is required")
	}
	out, err := c.run(ctx, CmdFileDir, pattern)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
