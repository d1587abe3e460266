package store

import (
	"context"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Store defines the run-history persistence layer.
type Store interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id, outcome string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)

	// Step groups within a run
	CreateGroup(ctx context.Context, g *model.StepGroup) error
	FinishGroup(ctx context.Context, runID, label, outcome string) error
	ListGroupsByRun(ctx context.Context, runID string) ([]*model.StepGroup, error)

	// Job submissions
	CreateJob(ctx context.Context, job *model.JobRecord) error
	UpdateJob(ctx context.Context, rec *model.SubmissionRecord) (bool, error)
	ListJobsByRun(ctx context.Context, runID string) ([]*model.JobRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
