// Package monitor polls the scheduler for every outstanding submission
// of one group and applies the transition rules: completions drain the
// group, timeouts and node failures trigger an escalated resubmission
// into the same slot, and a failed or cancelled job aborts the run.
package monitor

import (
	"context"
	"time"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Admitter performs one admission-controlled submission attempt. The
// monitor uses it for the resubmission path so replacements obey the same
// site limits as first attempts.
type Admitter interface {
	TrySubmit(ctx context.Context, unit model.JobUnit) (string, error)
}

// CapacityReleaser returns a unit's admission reservation when its job
// leaves the cluster.
type CapacityReleaser interface {
	Release(unit model.JobUnit)
}

// Observer is notified of record changes and per-cycle progress, for
// persistence and the status endpoint. Observers must not block.
type Observer interface {
	RecordUpdated(r *model.SubmissionRecord)
	ProgressReported(group string, p model.Progress)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RecordUpdated(*model.SubmissionRecord)   {}
func (NopObserver) ProgressReported(string, model.Progress) {}

// Config holds monitor configuration.
type Config struct {
	// PollInterval is the fixed delay between scheduler state sweeps.
	// Interactive and test runs use a much shorter interval.
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 60 * time.Second}
}
