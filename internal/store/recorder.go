package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// recordTimeout bounds each history write so a wedged database cannot
// stall the poll loop.
const recordTimeout = 5 * time.Second

// HistoryRecorder persists run progress as it happens. It satisfies both
// the driver's recorder and the monitor's observer. Recording is best
// effort: failures are logged and never interrupt the run.
type HistoryRecorder struct {
	store   Store
	workDir string
	logger  *slog.Logger

	mu    sync.Mutex
	runID string
	group string
	last  model.Progress
}

// NewHistoryRecorder returns a recorder writing to store. workDir is
// stamped on the run row for later listing.
func NewHistoryRecorder(store Store, workDir string, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{
		store:   store,
		workDir: workDir,
		logger:  logger.With("component", "history"),
	}
}

func (h *HistoryRecorder) writeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), recordTimeout)
}

func (h *HistoryRecorder) RunStarted(runID string, groups []model.JobGroupSelector) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()

	ctx, cancel := h.writeCtx()
	defer cancel()
	err := h.store.CreateRun(ctx, &model.Run{
		ID:        runID,
		WorkDir:   h.workDir,
		Outcome:   "running",
		Groups:    len(groups),
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("recording run start", "run_id", runID, "error", err)
	}
}

func (h *HistoryRecorder) GroupStarted(runID, label string, records []*model.SubmissionRecord) {
	h.mu.Lock()
	h.group = label
	h.mu.Unlock()

	ctx, cancel := h.writeCtx()
	defer cancel()
	err := h.store.CreateGroup(ctx, &model.StepGroup{
		RunID:     runID,
		Label:     label,
		Outcome:   "running",
		Jobs:      len(records),
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Warn("recording group start", "run_id", runID, "group", label, "error", err)
	}
	for _, rec := range records {
		h.insertJob(ctx, runID, label, rec)
	}
}

func (h *HistoryRecorder) GroupFinished(runID, label, outcome string) {
	ctx, cancel := h.writeCtx()
	defer cancel()
	if err := h.store.FinishGroup(ctx, runID, label, outcome); err != nil {
		h.logger.Warn("recording group finish", "run_id", runID, "group", label, "error", err)
	}
}

func (h *HistoryRecorder) RunFinished(runID, outcome string) {
	ctx, cancel := h.writeCtx()
	defer cancel()
	if err := h.store.FinishRun(ctx, runID, outcome); err != nil {
		h.logger.Warn("recording run finish", "run_id", runID, "error", err)
	}
}

// RecordUpdated persists a state change. A record first seen here was
// created by resubmission, so it is inserted under the current group.
func (h *HistoryRecorder) RecordUpdated(rec *model.SubmissionRecord) {
	h.mu.Lock()
	runID, group := h.runID, h.group
	h.mu.Unlock()

	ctx, cancel := h.writeCtx()
	defer cancel()
	updated, err := h.store.UpdateJob(ctx, rec)
	if err != nil {
		h.logger.Warn("recording job update", "record_id", rec.ID, "error", err)
		return
	}
	if !updated {
		h.insertJob(ctx, runID, group, rec)
	}
}

func (h *HistoryRecorder) ProgressReported(group string, p model.Progress) {
	h.mu.Lock()
	h.group = group
	h.last = p
	h.mu.Unlock()
}

// Snapshot returns the run, group, and progress of the group currently
// being monitored. The status endpoint reads it.
func (h *HistoryRecorder) Snapshot() (runID, group string, p model.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID, h.group, h.last
}

func (h *HistoryRecorder) insertJob(ctx context.Context, runID, label string, rec *model.SubmissionRecord) {
	job := &model.JobRecord{
		SubmissionRecord: *rec,
		RunID:            runID,
		GroupLabel:       label,
	}
	if err := h.store.CreateJob(ctx, job); err != nil {
		h.logger.Warn("recording job", "record_id", rec.ID, "error", err)
	}
}
