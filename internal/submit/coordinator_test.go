package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

type fakeExpander struct {
	units []model.JobUnit
	err   error
}

func (f *fakeExpander) Expand(_ model.JobGroupSelector) ([]model.JobUnit, error) {
	return f.units, f.err
}

// fakeAdmitter defers each unit a configurable number of times before
// accepting it, and can reject one unit outright.
type fakeAdmitter struct {
	deferrals  map[string]int // unit name -> times to defer before accepting
	rejectName string
	nextID     int
	attempts   []string // every TrySubmit call in order, by unit name
}

func (f *fakeAdmitter) TrySubmit(_ context.Context, unit model.JobUnit) (string, error) {
	name := unit.Name()
	f.attempts = append(f.attempts, name)

	if name == f.rejectName {
		return "", &model.AdmissionError{Kind: model.AdmissionRejected, Unit: unit, Cause: errors.New("invalid script")}
	}
	if f.deferrals[name] > 0 {
		f.deferrals[name]--
		return "", &model.AdmissionError{Kind: model.AdmissionDeferred, Unit: unit, Cause: errors.New("queue full")}
	}
	f.nextID++
	return fmt.Sprintf("%d", 5000+f.nextID), nil
}

func testUnits(n int) []model.JobUnit {
	units := make([]model.JobUnit, n)
	for i := range units {
		units[i] = model.JobUnit{
			Path:      fmt.Sprintf("run_05_invert_igram_%d.job", i),
			StepName:  "invert_igram",
			TaskCount: 1,
		}
	}
	return units
}

func newTestCoordinator(exp UnitExpander, adm Admitter) *Coordinator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{RetryInterval: time.Millisecond}
	return NewCoordinator(exp, adm, cfg, logger)
}

func sel() model.JobGroupSelector {
	return model.JobGroupSelector{Step: 5, Pattern: "run_05_*.job"}
}

func TestSubmitGroup_AllAccepted(t *testing.T) {
	adm := &fakeAdmitter{}
	c := newTestCoordinator(&fakeExpander{units: testUnits(3)}, adm)

	records, err := c.SubmitGroup(context.Background(), sel())
	if err != nil {
		t.Fatalf("SubmitGroup() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, r := range records {
		if r.Attempt != 1 {
			t.Errorf("record %d attempt = %d, want 1", i, r.Attempt)
		}
		if r.State != model.StatePending {
			t.Errorf("record %d state = %q, want PENDING", i, r.State)
		}
		if r.SchedulerID == "" || r.ID == "" {
			t.Errorf("record %d missing ids: %+v", i, r)
		}
		if want := fmt.Sprintf("run_05_invert_igram_%d.job", i); r.Unit.Name() != want {
			t.Errorf("record %d unit = %q, want %q", i, r.Unit.Name(), want)
		}
	}
}

func TestSubmitGroup_DeferredRequeuedAtBack(t *testing.T) {
	adm := &fakeAdmitter{deferrals: map[string]int{"run_05_invert_igram_0.job": 1}}
	c := newTestCoordinator(&fakeExpander{units: testUnits(3)}, adm)

	records, err := c.SubmitGroup(context.Background(), sel())
	if err != nil {
		t.Fatalf("SubmitGroup() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	// Unit 0 was deferred once, so it lands last in acceptance order.
	if got := records[2].Unit.Name(); got != "run_05_invert_igram_0.job" {
		t.Errorf("last accepted unit = %q, want the deferred one", got)
	}

	wantAttempts := []string{
		"run_05_invert_igram_0.job",
		"run_05_invert_igram_1.job",
		"run_05_invert_igram_2.job",
		"run_05_invert_igram_0.job",
	}
	if len(adm.attempts) != len(wantAttempts) {
		t.Fatalf("attempt sequence %v, want %v", adm.attempts, wantAttempts)
	}
	for i := range wantAttempts {
		if adm.attempts[i] != wantAttempts[i] {
			t.Errorf("attempt %d = %q, want %q", i, adm.attempts[i], wantAttempts[i])
		}
	}
}

func TestSubmitGroup_RejectionAborts(t *testing.T) {
	adm := &fakeAdmitter{rejectName: "run_05_invert_igram_1.job"}
	c := newTestCoordinator(&fakeExpander{units: testUnits(3)}, adm)

	_, err := c.SubmitGroup(context.Background(), sel())
	var admErr *model.AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("SubmitGroup() error = %v, want *model.AdmissionError", err)
	}
	if !admErr.IsRejected() {
		t.Errorf("Kind = %q, want rejected", admErr.Kind)
	}

	// Unit 2 must never be attempted after the rejection.
	for _, name := range adm.attempts {
		if name == "run_05_invert_igram_2.job" {
			t.Error("coordinator kept submitting after a rejection")
		}
	}
}

func TestSubmitGroup_Empty(t *testing.T) {
	c := newTestCoordinator(&fakeExpander{}, &fakeAdmitter{})

	records, err := c.SubmitGroup(context.Background(), sel())
	if err != nil {
		t.Fatalf("SubmitGroup() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for empty group, want 0", len(records))
	}
}

func TestSubmitGroup_RandomizeKeepsUnitSet(t *testing.T) {
	adm := &fakeAdmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCoordinator(&fakeExpander{units: testUnits(20)},
		adm, Config{Randomize: true, RetryInterval: time.Millisecond}, logger)

	records, err := c.SubmitGroup(context.Background(), sel())
	if err != nil {
		t.Fatalf("SubmitGroup() error: %v", err)
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.Unit.Name()] = true
	}
	if len(seen) != 20 {
		t.Errorf("shuffled group covers %d distinct units, want 20", len(seen))
	}
}

func TestSubmitGroup_ContextCancelled(t *testing.T) {
	// Every attempt defers, so the coordinator would wait forever without
	// the context check.
	adm := &fakeAdmitter{deferrals: map[string]int{"run_05_invert_igram_0.job": 1 << 30}}
	c := newTestCoordinator(&fakeExpander{units: testUnits(1)}, adm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.SubmitGroup(ctx, sel()); !errors.Is(err, context.Canceled) {
		t.Errorf("SubmitGroup() error = %v, want context.Canceled", err)
	}
}

func TestSubmitGroup_ExpandError(t *testing.T) {
	c := newTestCoordinator(&fakeExpander{err: errors.New("bad glob")}, &fakeAdmitter{})

	if _, err := c.SubmitGroup(context.Background(), sel()); err == nil {
		t.Error("SubmitGroup() = nil error, want expansion error")
	}
}
