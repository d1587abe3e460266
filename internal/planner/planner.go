// Package planner expands a requested step range into the ordered list of
// job-group selectors the workflow driver will run.
package planner

import (
	"fmt"
	"log/slog"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// StepCatalog is the directory-layout collaborator the planner consults:
// which steps exist on disk and which scripts belong to each.
type StepCatalog interface {
	HighestStep() (int, error)
	SelectorForStep(step int) model.JobGroupSelector
	Expand(sel model.JobGroupSelector) ([]model.JobUnit, error)
}

// Request is one planning request as it arrives from the command line.
// Zero-valued selectors mean "unspecified": start defaults to the first
// step, stop to the highest step present. JobFile switches to single-job
// mode and wins over everything else.
type Request struct {
	Start   model.StepSelector
	Stop    model.StepSelector
	Only    model.StepSelector
	JobFile string
}

// Planner turns Requests into selector sequences.
type Planner struct {
	catalog StepCatalog
	aliases map[string]int
	logger  *slog.Logger
}

// New creates a Planner over the given catalog. aliases maps named
// pipeline stages to step numbers.
func New(cat StepCatalog, aliases map[string]int, logger *slog.Logger) *Planner {
	return &Planner{
		catalog: cat,
		aliases: aliases,
		logger:  logger.With("component", "planner"),
	}
}

// Plan produces the ordered selector sequence for one request. Selectors
// are emitted in ascending step order; steps with no scripts on disk are
// dropped. A stop beyond the highest step present is clipped, never an
// error. An empty result is valid and means there is nothing to run.
func (p *Planner) Plan(req Request) ([]model.JobGroupSelector, error) {
	if req.JobFile != "" {
		sel := model.SingleUnit(req.JobFile)
		if _, err := p.catalog.Expand(sel); err != nil {
			return nil, &model.PlanningError{Expr: req.JobFile, Reason: err.Error()}
		}
		return []model.JobGroupSelector{sel}, nil
	}

	start, stop, err := p.resolveRange(req)
	if err != nil {
		return nil, err
	}

	highest, err := p.catalog.HighestStep()
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	if stop == 0 || stop > highest {
		if stop > highest {
			p.logger.Debug("stop clipped to highest step on disk", "requested", stop, "highest", highest)
		}
		stop = highest
	}

	var selectors []model.JobGroupSelector
	for n := start; n <= stop; n++ {
		sel := p.catalog.SelectorForStep(n)
		units, err := p.catalog.Expand(sel)
		if err != nil {
			return nil, fmt.Errorf("planning step %d: %w", n, err)
		}
		if len(units) == 0 {
			p.logger.Debug("step has no job scripts, dropped", "step", n)
			continue
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}

// resolveRange turns the request's selectors into a numeric [start, stop]
// pair. stop == 0 means "up to the highest step present".
func (p *Planner) resolveRange(req Request) (start, stop int, err error) {
	if !req.Only.IsZero() {
		n, err := req.Only.Resolve(p.aliases)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}

	start = 1
	if !req.Start.IsZero() {
		if start, err = req.Start.Resolve(p.aliases); err != nil {
			return 0, 0, err
		}
	}
	if !req.Stop.IsZero() {
		if stop, err = req.Stop.Resolve(p.aliases); err != nil {
			return 0, 0, err
		}
		if stop < start {
			return 0, 0, &model.PlanningError{
				Expr:   fmt.Sprintf("%d..%d", start, stop),
				Reason: "stop step precedes start step",
			}
		}
	}
	return start, stop, nil
}
