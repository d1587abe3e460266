package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/geodesymiami/minsar-sub000/internal/monitor"
	"github.com/geodesymiami/minsar-sub000/internal/planner"
	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// events collects the call order across all fakes so tests can assert
// strict sequencing.
type events struct {
	log []string
}

func (e *events) add(format string, args ...any) {
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

type fakePlanner struct {
	groups []model.JobGroupSelector
	err    error
}

func (f *fakePlanner) Plan(planner.Request) ([]model.JobGroupSelector, error) {
	return f.groups, f.err
}

type fakeSubmitter struct {
	ev         *events
	unitsPer   int
	emptyLabel string
	errLabel   string
}

func (f *fakeSubmitter) SubmitGroup(_ context.Context, sel model.JobGroupSelector) ([]*model.SubmissionRecord, error) {
	f.ev.add("submit %s", sel.Label())
	if sel.Label() == f.errLabel {
		return nil, &model.AdmissionError{Kind: model.AdmissionRejected, Cause: errors.New("bad script")}
	}
	if sel.Label() == f.emptyLabel {
		return nil, nil
	}
	records := make([]*model.SubmissionRecord, f.unitsPer)
	for i := range records {
		records[i] = &model.SubmissionRecord{
			ID:          fmt.Sprintf("rec_%s_%d", sel.Label(), i),
			Unit:        model.JobUnit{Path: fmt.Sprintf("unit_%d.job", i)},
			SchedulerID: fmt.Sprintf("%d", 100+i),
			Attempt:     1,
			State:       model.StatePending,
		}
	}
	return records, nil
}

type fakeMonitor struct {
	ev        *events
	failLabel string
}

func (f *fakeMonitor) Run(_ context.Context, g *monitor.Group) error {
	f.ev.add("monitor %s", g.Label())
	if g.Label() == f.failLabel {
		return &model.ClusterJobFailure{
			Unit:        g.Records()[0].Unit,
			SchedulerID: g.Records()[0].SchedulerID,
			State:       model.StateFailed,
		}
	}
	for _, r := range g.Records() {
		r.State = model.StateCompleted
	}
	return nil
}

type fakeHook struct {
	ev        *events
	failLabel string
}

func (f *fakeHook) AfterGroup(_ context.Context, sel model.JobGroupSelector, units []model.JobUnit) error {
	f.ev.add("hook %s (%d units)", sel.Label(), len(units))
	if sel.Label() == f.failLabel {
		return &model.ValidationError{Step: sel.Label(), Output: "timeseries.h5"}
	}
	return nil
}

type recRecorder struct {
	calls []string
}

func (r *recRecorder) RunStarted(_ string, groups []model.JobGroupSelector) {
	r.calls = append(r.calls, fmt.Sprintf("run started %d", len(groups)))
}

func (r *recRecorder) GroupStarted(_, label string, records []*model.SubmissionRecord) {
	r.calls = append(r.calls, fmt.Sprintf("group started %s %d", label, len(records)))
}

func (r *recRecorder) GroupFinished(_, label, outcome string) {
	r.calls = append(r.calls, fmt.Sprintf("group finished %s %s", label, outcome))
}

func (r *recRecorder) RunFinished(_, outcome string) {
	r.calls = append(r.calls, fmt.Sprintf("run finished %s", outcome))
}

func groupSel(step int) model.JobGroupSelector {
	return model.JobGroupSelector{Step: step, Pattern: fmt.Sprintf("run_%02d_*.job", step)}
}

func newTestDriver(ev *events, p StepPlanner, sub GroupSubmitter, mon GroupMonitor, hook Hook) *Driver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(p, sub, mon, logger)
	d.SetHook(hook)
	return d
}

func assertLog(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event log = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_SequentialGroups(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5), groupSel(6)}}
	d := newTestDriver(ev,
		p,
		&fakeSubmitter{ev: ev, unitsPer: 2},
		&fakeMonitor{ev: ev},
		&fakeHook{ev: ev},
	)

	if err := d.Run(context.Background(), planner.Request{}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Group 6 must not see any activity until group 5 has monitored and
	// validated clean.
	assertLog(t, ev.log, []string{
		"submit step 5",
		"monitor step 5",
		"hook step 5 (2 units)",
		"submit step 6",
		"monitor step 6",
		"hook step 6 (2 units)",
	})
}

func TestRun_MonitorAbortStopsPipeline(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5), groupSel(6)}}
	d := newTestDriver(ev,
		p,
		&fakeSubmitter{ev: ev, unitsPer: 1},
		&fakeMonitor{ev: ev, failLabel: "step 5"},
		&fakeHook{ev: ev},
	)

	err := d.Run(context.Background(), planner.Request{})
	var failure *model.ClusterJobFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Run() error = %v, want *model.ClusterJobFailure", err)
	}

	// No hook for the failed group, no activity for the next group.
	assertLog(t, ev.log, []string{
		"submit step 5",
		"monitor step 5",
	})
}

func TestRun_HookFailureStopsPipeline(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5), groupSel(6)}}
	d := newTestDriver(ev,
		p,
		&fakeSubmitter{ev: ev, unitsPer: 1},
		&fakeMonitor{ev: ev},
		&fakeHook{ev: ev, failLabel: "step 5"},
	)

	err := d.Run(context.Background(), planner.Request{})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Run() error = %v, want *model.ValidationError", err)
	}
	assertLog(t, ev.log, []string{
		"submit step 5",
		"monitor step 5",
		"hook step 5 (1 units)",
	})
}

func TestRun_SubmissionRejectionStopsPipeline(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5), groupSel(6)}}
	d := newTestDriver(ev,
		p,
		&fakeSubmitter{ev: ev, unitsPer: 1, errLabel: "step 5"},
		&fakeMonitor{ev: ev},
		&fakeHook{ev: ev},
	)

	err := d.Run(context.Background(), planner.Request{})
	var admErr *model.AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("Run() error = %v, want *model.AdmissionError", err)
	}
	assertLog(t, ev.log, []string{"submit step 5"})
}

func TestRun_PlanningErrorPropagates(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{err: &model.PlanningError{Expr: "mintpy", Reason: "unknown step name"}}
	d := newTestDriver(ev, p, &fakeSubmitter{ev: ev}, &fakeMonitor{ev: ev}, &fakeHook{ev: ev})

	err := d.Run(context.Background(), planner.Request{})
	var pe *model.PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want *model.PlanningError", err)
	}
	if len(ev.log) != 0 {
		t.Errorf("activity after planning error: %v", ev.log)
	}
}

func TestRun_EmptyPlanSucceeds(t *testing.T) {
	ev := &events{}
	d := newTestDriver(ev, &fakePlanner{}, &fakeSubmitter{ev: ev}, &fakeMonitor{ev: ev}, &fakeHook{ev: ev})

	if err := d.Run(context.Background(), planner.Request{}); err != nil {
		t.Errorf("Run() error: %v, want nil for empty plan", err)
	}
}

func TestRun_SkipsGroupThatExpandsEmpty(t *testing.T) {
	ev := &events{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5), groupSel(6)}}
	d := newTestDriver(ev,
		p,
		&fakeSubmitter{ev: ev, unitsPer: 1, emptyLabel: "step 5"},
		&fakeMonitor{ev: ev},
		&fakeHook{ev: ev},
	)

	if err := d.Run(context.Background(), planner.Request{}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertLog(t, ev.log, []string{
		"submit step 5",
		"submit step 6",
		"monitor step 6",
		"hook step 6 (1 units)",
	})
}

func TestRun_RecordsHistory(t *testing.T) {
	ev := &events{}
	rec := &recRecorder{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5)}}
	d := newTestDriver(ev, p, &fakeSubmitter{ev: ev, unitsPer: 2}, &fakeMonitor{ev: ev}, &fakeHook{ev: ev})
	d.SetRecorder(rec)

	if err := d.Run(context.Background(), planner.Request{}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertLog(t, rec.calls, []string{
		"run started 1",
		"group started step 5 2",
		"group finished step 5 completed",
		"run finished completed",
	})
}

func TestRun_RecordsAbortedOutcome(t *testing.T) {
	ev := &events{}
	rec := &recRecorder{}
	p := &fakePlanner{groups: []model.JobGroupSelector{groupSel(5)}}
	d := newTestDriver(ev, p, &fakeSubmitter{ev: ev, unitsPer: 1},
		&fakeMonitor{ev: ev, failLabel: "step 5"}, &fakeHook{ev: ev})
	d.SetRecorder(rec)

	if err := d.Run(context.Background(), planner.Request{}); err == nil {
		t.Fatal("Run() = nil error, want abort")
	}
	assertLog(t, rec.calls, []string{
		"run started 1",
		"group started step 5 1",
		"group finished step 5 aborted",
		"run finished aborted",
	})
}
