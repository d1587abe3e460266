// Package submit drives the job units of one group through admission
// control until every unit has been accepted by the scheduler.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// UnitExpander resolves a group selector to its concrete job units.
type UnitExpander interface {
	Expand(sel model.JobGroupSelector) ([]model.JobUnit, error)
}

// Admitter performs one admission-controlled submission attempt.
type Admitter interface {
	TrySubmit(ctx context.Context, unit model.JobUnit) (string, error)
}

// Config holds coordinator configuration.
type Config struct {
	// Randomize shuffles the submission order within a group to avoid
	// systematic queue-position bias. The logical step order is untouched.
	Randomize bool
	// RetryInterval is how long to wait after a full pass in which no
	// deferred unit could be admitted.
	RetryInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{RetryInterval: 60 * time.Second}
}

// Coordinator submits one group at a time. Submission of a group is not
// done until every unit is accepted or a unit fails validation.
type Coordinator struct {
	expander UnitExpander
	admitter Admitter
	config   Config
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(exp UnitExpander, adm Admitter, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		expander: exp,
		admitter: adm,
		config:   cfg,
		logger:   logger.With("component", "submit"),
	}
}

// SubmitGroup expands the selector and submits every unit, requeueing
// deferred units at the back until all are in. Records come back in
// acceptance order, each at attempt 1. A rejected unit aborts the group:
// a script the scheduler refuses to validate points at an upstream
// generation bug that must surface, not be skipped.
func (c *Coordinator) SubmitGroup(ctx context.Context, sel model.JobGroupSelector) ([]*model.SubmissionRecord, error) {
	units, err := c.expander.Expand(sel)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", sel.Label(), err)
	}
	if len(units) == 0 {
		return nil, nil
	}

	queue := make([]model.JobUnit, len(units))
	copy(queue, units)
	if c.config.Randomize {
		rand.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
	}

	c.logger.Info("submitting group", "group", sel.Label(), "units", len(queue), "randomized", c.config.Randomize)

	records := make([]*model.SubmissionRecord, 0, len(queue))
	for len(queue) > 0 {
		var deferred []model.JobUnit
		for _, unit := range queue {
			if err := ctx.Err(); err != nil {
				return records, err
			}

			id, err := c.admitter.TrySubmit(ctx, unit)
			if err != nil {
				var admErr *model.AdmissionError
				if errors.As(err, &admErr) && admErr.IsDeferred() {
					deferred = append(deferred, unit)
					continue
				}
				return records, err
			}

			records = append(records, model.NewSubmissionRecord(unit, id))
		}

		if len(deferred) == len(queue) {
			// Nothing moved this pass; give the cluster time to drain
			// before trying again.
			c.logger.Info("all remaining units deferred, waiting",
				"group", sel.Label(), "remaining", len(deferred), "retry_in", c.config.RetryInterval)
			select {
			case <-ctx.Done():
				return records, ctx.Err()
			case <-time.After(c.config.RetryInterval):
			}
		}
		queue = deferred
	}

	c.logger.Info("group fully submitted", "group", sel.Label(), "records", len(records))
	return records, nil
}
