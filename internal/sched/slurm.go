package sched

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/geodesymiami/minsar-sub000/internal/walltime"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

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

// SlurmConfig names the scheduler binaries. Overridable for sites that
// wrap them and for tests.
type SlurmConfig struct {
	SbatchBin string
	SacctBin  string
	SqueueBin string
}

// DefaultSlurmConfig returns the standard binary names.
func DefaultSlurmConfig() SlurmConfig {
	return SlurmConfig{SbatchBin: "sbatch", SacctBin: "sacct", SqueueBin: "squeue"}
}

// SlurmClient implements Client over the sbatch/sacct/squeue tools.
type SlurmClient struct {
	config SlurmConfig
	runner CommandRunner
	logger *slog.Logger
}

// NewSlurmClient creates a client using the real scheduler binaries.
func NewSlurmClient(cfg SlurmConfig, logger *slog.Logger) *SlurmClient {
	return newSlurmClientWithRunner(cfg, &osCommandRunner{}, logger)
}

func newSlurmClientWithRunner(cfg SlurmConfig, runner CommandRunner, logger *slog.Logger) *SlurmClient {
	return &SlurmClient{
		config: cfg,
		runner: runner,
		logger: logger.With("component", "sched"),
	}
}

// submitArgs builds the sbatch argument list for a unit. Walltime and
// partition ride on the command line so an escalated resubmission never
// has to rewrite the script on disk; sbatch flags override #SBATCH
// directives.
func submitArgs(unit model.JobUnit, extra ...string) []string {
	args := make([]string, 0, 4+len(extra))
	args = append(args, extra...)
	if unit.RequestedWalltime > 0 {
		args = append(args, "--time="+walltime.Format(unit.RequestedWalltime))
	}
	if unit.QueueClass != "" {
		args = append(args, "--partition="+unit.QueueClass)
	}
	return append(args, unit.Path)
}

// DryRun asks sbatch to validate the script without queueing it.
func (c *SlurmClient) DryRun(ctx context.Context, unit model.JobUnit) error {
	args := submitArgs(unit, "--test-only")
	_, stderr, code, err := c.runner.Run(ctx, c.config.SbatchBin, args...)
	if err != nil {
		return fmt.Errorf("sbatch --test-only: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("sbatch --test-only exited %d: %s", code, firstLine(stderr))
	}
	return nil
}

// Submit queues the unit and returns the job id sbatch prints.
func (c *SlurmClient) Submit(ctx context.Context, unit model.JobUnit) (string, error) {
	args := submitArgs(unit, "--parsable")
	stdout, stderr, code, err := c.runner.Run(ctx, c.config.SbatchBin, args...)
	if err != nil {
		return "", fmt.Errorf("sbatch: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("sbatch exited %d: %s", code, firstLine(stderr))
	}

	// --parsable prints "jobid" or "jobid;cluster".
	id, _, _ := strings.Cut(firstLine(stdout), ";")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sbatch returned no job id")
	}
	c.logger.Debug("job submitted", "job", unit.Name(), "scheduler_id", id,
		"walltime", walltime.Format(unit.RequestedWalltime), "queue", unit.QueueClass)
	return id, nil
}

// QueryState asks sacct for the job's state, falling back to squeue when
// accounting has not caught up yet. An empty answer from both maps to
// StateUnknown without an error; the next poll usually resolves it.
func (c *SlurmClient) QueryState(ctx context.Context, schedulerID string) (model.ClusterJobState, error) {
	stdout, stderr, code, err := c.runner.Run(ctx, c.config.SacctBin,
		"-j", schedulerID, "-X", "--noheader", "--format=State")
	if err != nil {
		return model.StateUnknown, fmt.Errorf("sacct: %w", err)
	}
	if code != 0 {
		return model.StateUnknown, fmt.Errorf("sacct exited %d: %s", code, firstLine(stderr))
	}
	if raw := firstLine(stdout); raw != "" {
		return c.parseState(schedulerID, raw), nil
	}

	// sacct knows nothing yet; squeue sees pending and running jobs
	// immediately after submission.
	stdout, _, code, err = c.runner.Run(ctx, c.config.SqueueBin,
		"-j", schedulerID, "--noheader", "--format=%T")
	if err != nil || code != 0 {
		// squeue rejects ids it no longer tracks; with sacct also silent
		// the job is in the accounting gap.
		return model.StateUnknown, nil
	}
	if raw := firstLine(stdout); raw != "" {
		return c.parseState(schedulerID, raw), nil
	}
	return model.StateUnknown, nil
}

func (c *SlurmClient) parseState(schedulerID, raw string) model.ClusterJobState {
	state := model.ParseClusterState(raw)
	if state == model.StateUnknown {
		c.logger.Warn("unrecognized scheduler state", "scheduler_id", schedulerID, "raw", raw)
	}
	return state
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
