package driver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Hook is the post-group validation callback. It runs once per completed
// group, before the next group may start; a returned error aborts the
// run exactly like a scheduler-reported failure.
type Hook interface {
	AfterGroup(ctx context.Context, sel model.JobGroupSelector, units []model.JobUnit) error
}

// NopHook accepts every group.
type NopHook struct{}

func (NopHook) AfterGroup(context.Context, model.JobGroupSelector, []model.JobUnit) error {
	return nil
}

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// osCommandRunner is the real implementation using os/exec.
type osCommandRunner struct{}

func (r *osCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()

	switch e := runErr.(type) {
	case nil:
		return stdout, stderr, 0, nil
	case *exec.ExitError:
		return stdout, stderr, e.ExitCode(), nil
	default:
		return stdout, stderr, -1, runErr
	}
}

// CommandHook invokes a site-provided checker after each group, passing
// the group label followed by every job script path. A nonzero exit
// fails the group. This is where output checks and defect-driven
// exclusions live, outside the orchestrator itself.
type CommandHook struct {
	command string
	runner  CommandRunner
	logger  *slog.Logger
}

// NewCommandHook creates a hook around an external checker program.
func NewCommandHook(command string, logger *slog.Logger) *CommandHook {
	return newCommandHookWithRunner(command, &osCommandRunner{}, logger)
}

func newCommandHookWithRunner(command string, runner CommandRunner, logger *slog.Logger) *CommandHook {
	return &CommandHook{
		command: command,
		runner:  runner,
		logger:  logger.With("component", "hook"),
	}
}

func (h *CommandHook) AfterGroup(ctx context.Context, sel model.JobGroupSelector, units []model.JobUnit) error {
	args := make([]string, 0, 1+len(units))
	args = append(args, sel.Label())
	for _, u := range units {
		args = append(args, u.Path)
	}

	h.logger.Debug("running validation hook", "command", h.command, "group", sel.Label(), "units", len(units))
	_, stderr, code, err := h.runner.Run(ctx, h.command, args...)
	if err != nil {
		return fmt.Errorf("validation hook: %w", err)
	}
	if code != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("checker exited %d", code)
		}
		return &model.ValidationError{Step: sel.Label(), Output: msg}
	}
	return nil
}
