package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionRecord binds a JobUnit to one scheduler-side attempt. Records
// are created only through admission-controlled submission and are never
// transitioned back from a terminal state: a resubmission supersedes the
// old record with a fresh one (Attempt incremented) in the same slot of the
// outstanding set.
type SubmissionRecord struct {
	ID          string          `json:"id"`
	Unit        JobUnit         `json:"unit"`
	SchedulerID string          `json:"scheduler_id"`
	Attempt     int             `json:"attempt"`
	State       ClusterJobState `json:"state"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewSubmissionRecord returns the first-attempt record for a unit the
// scheduler just accepted.
func NewSubmissionRecord(unit JobUnit, schedulerID string) *SubmissionRecord {
	now := time.Now().UTC()
	return &SubmissionRecord{
		ID:          "rec_" + uuid.New().String(),
		Unit:        unit,
		SchedulerID: schedulerID,
		Attempt:     1,
		State:       StatePending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// Resubmitted derives the replacement record that supersedes r, carrying
// the attempt counter forward. An empty newID marks a replacement still
// waiting on admission; it stays UNKNOWN until the scheduler accepts it.
func (r *SubmissionRecord) Resubmitted(unit JobUnit, newID string) *SubmissionRecord {
	now := time.Now().UTC()
	next := &SubmissionRecord{
		ID:          "rec_" + uuid.New().String(),
		Unit:        unit,
		SchedulerID: newID,
		Attempt:     r.Attempt + 1,
		State:       StatePending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if newID == "" {
		next.State = StateUnknown
	}
	return next
}

// SetState updates the observed state and the update timestamp.
func (r *SubmissionRecord) SetState(s ClusterJobState) {
	r.State = s
	r.UpdatedAt = time.Now().UTC()
}

// Progress is the per-poll-cycle count of records by category. Waiting
// covers everything not yet pending, running, or completed: attempts
// awaiting resubmission and records last seen in an unknown state.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
	Waiting   int `json:"waiting"`
}

// Done reports whether every record has completed.
func (p Progress) Done() bool {
	return p.Completed == p.Total
}

// ComputeProgress tallies the outstanding set into a Progress.
func ComputeProgress(records []*SubmissionRecord) Progress {
	p := Progress{Total: len(records)}
	for _, r := range records {
		switch r.State {
		case StateCompleted:
			p.Completed++
		case StateRunning:
			p.Running++
		case StatePending:
			p.Pending++
		}
	}
	p.Waiting = p.Total - p.Completed - p.Running - p.Pending
	return p
}
