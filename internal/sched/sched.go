// Package sched talks to the cluster batch scheduler through its
// command-line tools: dry-run validation, submission and state queries.
package sched

import (
	"context"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Client is the scheduler interface the orchestrator depends on. The
// scheduler is authoritative and eventually consistent: a state query
// right after Submit may still report PENDING for a running job, or
// nothing at all while accounting catches up.
type Client interface {
	// DryRun validates a job unit without consuming a scheduler slot.
	// A returned error means the scheduler would reject the script.
	DryRun(ctx context.Context, unit model.JobUnit) error

	// Submit queues the job unit for real and returns the scheduler's
	// job identifier.
	Submit(ctx context.Context, unit model.JobUnit) (string, error)

	// QueryState reports the current state of a submitted job. A
	// communication failure returns StateUnknown along with the error;
	// callers treat that as transient, not fatal.
	QueryState(ctx context.Context, schedulerID string) (model.ClusterJobState, error)
}
