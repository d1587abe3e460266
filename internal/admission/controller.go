package admission

import (
	"context"
	"log/slog"

	"github.com/geodesymiami/minsar-sub000/internal/sched"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Controller performs admission-controlled submission: site limits
// first, then a scheduler dry-run, then the real submission. Nothing is
// consumed until all three pass.
type Controller struct {
	state  *State
	client sched.Client
	logger *slog.Logger
}

// NewController creates a Controller sharing the given usage state.
func NewController(state *State, client sched.Client, logger *slog.Logger) *Controller {
	return &Controller{
		state:  state,
		client: client,
		logger: logger.With("component", "admission"),
	}
}

// State returns the usage tracker behind this controller.
func (c *Controller) State() *State { return c.state }

// TrySubmit drives one unit through the admission sequence and returns
// the scheduler id on success. Failures come back as *model.AdmissionError:
// deferred when a site budget or the scheduler queue is momentarily full,
// rejected when the dry-run proves the script itself unsubmittable.
func (c *Controller) TrySubmit(ctx context.Context, unit model.JobUnit) (string, error) {
	if err := c.state.Reserve(unit); err != nil {
		c.logger.Debug("submission deferred by site limits", "job", unit.Name(), "reason", err)
		return "", &model.AdmissionError{Kind: model.AdmissionDeferred, Unit: unit, Cause: err}
	}

	if err := c.client.DryRun(ctx, unit); err != nil {
		c.state.Release(unit)
		c.logger.Error("dry-run validation failed", "job", unit.Name(), "error", err)
		return "", &model.AdmissionError{Kind: model.AdmissionRejected, Unit: unit, Cause: err}
	}

	id, err := c.client.Submit(ctx, unit)
	if err != nil {
		// The script already passed validation, so a failure here is a
		// scheduler-side condition (queue limit, transient outage) that a
		// later attempt can clear.
		c.state.Release(unit)
		c.logger.Warn("submission deferred by scheduler", "job", unit.Name(), "error", err)
		return "", &model.AdmissionError{Kind: model.AdmissionDeferred, Unit: unit, Cause: err}
	}

	c.logger.Info("job admitted", "job", unit.Name(), "scheduler_id", id, "queue", unit.QueueClass, "tasks", unit.TaskCount)
	return id, nil
}
