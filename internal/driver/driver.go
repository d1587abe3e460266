// Package driver runs the planned groups in pipeline order: submit,
// monitor, validate, advance. A group never starts until its predecessor
// has fully completed and passed validation.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/geodesymiami/minsar-sub000/internal/monitor"
	"github.com/geodesymiami/minsar-sub000/internal/planner"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// Run outcomes as recorded in history.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// StepPlanner expands a request into ordered group selectors.
type StepPlanner interface {
	Plan(req planner.Request) ([]model.JobGroupSelector, error)
}

// GroupSubmitter drives one group through admission-controlled
// submission.
type GroupSubmitter interface {
	SubmitGroup(ctx context.Context, sel model.JobGroupSelector) ([]*model.SubmissionRecord, error)
}

// GroupMonitor polls one group until it drains or aborts.
type GroupMonitor interface {
	Run(ctx context.Context, g *monitor.Group) error
}

// Recorder persists run history. Implementations are best-effort: they
// log their own failures and never stop the workflow.
type Recorder interface {
	RunStarted(runID string, groups []model.JobGroupSelector)
	GroupStarted(runID, label string, records []*model.SubmissionRecord)
	GroupFinished(runID, label, outcome string)
	RunFinished(runID, outcome string)
}

// NopRecorder keeps no history.
type NopRecorder struct{}

func (NopRecorder) RunStarted(string, []model.JobGroupSelector)            {}
func (NopRecorder) GroupStarted(string, string, []*model.SubmissionRecord) {}
func (NopRecorder) GroupFinished(string, string, string)                   {}
func (NopRecorder) RunFinished(string, string)                             {}

// Driver owns one workflow run.
type Driver struct {
	planner   StepPlanner
	submitter GroupSubmitter
	monitor   GroupMonitor
	hook      Hook
	recorder  Recorder
	logger    *slog.Logger
}

// New creates a Driver with no validation hook and no history recording.
func New(p StepPlanner, sub GroupSubmitter, mon GroupMonitor, logger *slog.Logger) *Driver {
	return &Driver{
		planner:   p,
		submitter: sub,
		monitor:   mon,
		hook:      NopHook{},
		recorder:  NopRecorder{},
		logger:    logger.With("component", "driver"),
	}
}

// SetHook attaches the post-group validation hook.
func (d *Driver) SetHook(h Hook) {
	if h != nil {
		d.hook = h
	}
}

// SetRecorder attaches a history recorder.
func (d *Driver) SetRecorder(r Recorder) {
	if r != nil {
		d.recorder = r
	}
}

// Run plans and executes the request. It returns nil only when every
// group completed and validated; the first planning error, rejected
// submission, scheduler-reported failure or hook failure stops the run.
func (d *Driver) Run(ctx context.Context, req planner.Request) error {
	groups, err := d.planner.Plan(req)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		d.logger.Info("nothing to run: no job scripts in the requested range")
		return nil
	}

	runID := "run_" + uuid.New().String()
	d.logger.Info("workflow starting", "run_id", runID, "groups", len(groups))
	d.recorder.RunStarted(runID, groups)

	for i, sel := range groups {
		d.logger.Info("starting group", "group", sel.Label(), "position", fmt.Sprintf("%d/%d", i+1, len(groups)))

		records, err := d.submitter.SubmitGroup(ctx, sel)
		if err != nil {
			d.recorder.RunFinished(runID, OutcomeAborted)
			return err
		}
		if len(records) == 0 {
			// The selector emptied between planning and submission.
			d.logger.Warn("group expanded to no units, skipping", "group", sel.Label())
			continue
		}
		d.recorder.GroupStarted(runID, sel.Label(), records)

		g := monitor.NewGroup(sel.Label(), records)
		if err := d.monitor.Run(ctx, g); err != nil {
			var failure *model.ClusterJobFailure
			if errors.As(err, &failure) {
				d.logger.Error("workflow aborted", "run_id", runID, "group", sel.Label(),
					"job", failure.Unit.Name(), "state", failure.State.String())
			}
			d.recorder.GroupFinished(runID, sel.Label(), OutcomeAborted)
			d.recorder.RunFinished(runID, OutcomeAborted)
			return err
		}

		units := make([]model.JobUnit, len(g.Records()))
		for j, r := range g.Records() {
			units[j] = r.Unit
		}
		if err := d.hook.AfterGroup(ctx, sel, units); err != nil {
			d.recorder.GroupFinished(runID, sel.Label(), OutcomeAborted)
			d.recorder.RunFinished(runID, OutcomeAborted)
			return fmt.Errorf("validating %s: %w", sel.Label(), err)
		}

		d.recorder.GroupFinished(runID, sel.Label(), OutcomeCompleted)
		d.logger.Info("group validated", "group", sel.Label())
	}

	d.recorder.RunFinished(runID, OutcomeCompleted)
	d.logger.Info("workflow complete", "run_id", runID, "groups", len(groups))
	return nil
}
