package model

import "time"

// Run is the persisted summary of one orchestration invocation.
type Run struct {
	ID         string     `json:"id"`
	WorkDir    string     `json:"work_dir,omitempty"`
	Outcome    string     `json:"outcome"`
	Groups     int        `json:"groups"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepGroup is the persisted summary of one step group within a run.
type StepGroup struct {
	RunID      string     `json:"run_id"`
	Label      string     `json:"label"`
	Outcome    string     `json:"outcome"`
	Jobs       int        `json:"jobs"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobRecord is a SubmissionRecord with its run context, as stored in and
// listed from history.
type JobRecord struct {
	SubmissionRecord
	RunID      string `json:"run_id"`
	GroupLabel string `json:"group_label"`
}
