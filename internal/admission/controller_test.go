package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// fakeClient is an in-memory scheduler for controller tests.
type fakeClient struct {
	dryRunErr error
	submitErr error
	nextID    int
	dryRuns   []string
	submits   []string
}

func (f *fakeClient) DryRun(_ context.Context, unit model.JobUnit) error {
	f.dryRuns = append(f.dryRuns, unit.Name())
	return f.dryRunErr
}

func (f *fakeClient) Submit(_ context.Context, unit model.JobUnit) (string, error) {
	f.submits = append(f.submits, unit.Name())
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	return fmt.Sprintf("%d", 1000+f.nextID), nil
}

func (f *fakeClient) QueryState(_ context.Context, _ string) (model.ClusterJobState, error) {
	return model.StateUnknown, nil
}

func newTestController(limits model.ResourceLimits, client *fakeClient) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController(NewState(limits), client, logger)
}

func TestTrySubmit_Success(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(model.ResourceLimits{}, client)

	u := unit("unpack_topo_reference", "skx", 48)
	id, err := c.TrySubmit(context.Background(), u)
	if err != nil {
		t.Fatalf("TrySubmit() error: %v", err)
	}
	if id != "1001" {
		t.Errorf("TrySubmit() id = %q, want %q", id, "1001")
	}
	if len(client.dryRuns) != 1 || len(client.submits) != 1 {
		t.Errorf("scheduler saw %d dry-runs / %d submits, want 1 / 1", len(client.dryRuns), len(client.submits))
	}

	// Successful admission keeps the reservation until the monitor
	// releases it.
	if snap := c.State().Snapshot(); snap.TotalJobs != 1 {
		t.Errorf("TotalJobs = %d, want 1", snap.TotalJobs)
	}
}

func TestTrySubmit_DeferredBySiteLimit(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(model.ResourceLimits{MaxJobsPerQueue: 1}, client)

	ctx := context.Background()
	if _, err := c.TrySubmit(ctx, unit("a", "skx", 1)); err != nil {
		t.Fatalf("first TrySubmit() error: %v", err)
	}

	_, err := c.TrySubmit(ctx, unit("b", "skx", 1))
	var admErr *model.AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("TrySubmit() error = %v, want *model.AdmissionError", err)
	}
	if !admErr.IsDeferred() {
		t.Errorf("Kind = %q, want deferred", admErr.Kind)
	}

	// A deferred unit must never have reached the scheduler.
	if len(client.dryRuns) != 1 || len(client.submits) != 1 {
		t.Errorf("scheduler saw %d dry-runs / %d submits, want 1 / 1", len(client.dryRuns), len(client.submits))
	}
}

func TestTrySubmit_RejectedByDryRun(t *testing.T) {
	client := &fakeClient{dryRunErr: errors.New("invalid partition specified")}
	c := newTestController(model.ResourceLimits{}, client)

	_, err := c.TrySubmit(context.Background(), unit("a", "grx", 1))
	var admErr *model.AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("TrySubmit() error = %v, want *model.AdmissionError", err)
	}
	if !admErr.IsRejected() {
		t.Errorf("Kind = %q, want rejected", admErr.Kind)
	}
	if len(client.submits) != 0 {
		t.Errorf("real submission attempted after dry-run rejection")
	}

	// The failed reservation must be returned.
	if snap := c.State().Snapshot(); snap.TotalJobs != 0 {
		t.Errorf("TotalJobs = %d, want 0 after release", snap.TotalJobs)
	}
}

func TestTrySubmit_SubmitFailureDeferred(t *testing.T) {
	client := &fakeClient{submitErr: errors.New("sbatch exited 1: QOSMaxSubmitJobPerUserLimit")}
	c := newTestController(model.ResourceLimits{}, client)

	_, err := c.TrySubmit(context.Background(), unit("a", "skx", 1))
	var admErr *model.AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("TrySubmit() error = %v, want *model.AdmissionError", err)
	}
	if !admErr.IsDeferred() {
		t.Errorf("Kind = %q, want deferred", admErr.Kind)
	}
	if snap := c.State().Snapshot(); snap.TotalJobs != 0 {
		t.Errorf("TotalJobs = %d, want 0 after release", snap.TotalJobs)
	}
}
