package model

import "strings"

// ClusterJobState is the scheduler-reported state of one submitted job.
// Transitions are owned by the cluster scheduler: the orchestrator only
// observes states via polling; the only lever it has is submitting a brand
// new attempt, which produces a new SubmissionRecord rather than a
// transition of the old one.
type ClusterJobState string

const (
	StatePending    ClusterJobState = "PENDING"
	StateRunning    ClusterJobState = "RUNNING"
	StateCompleted  ClusterJobState = "COMPLETED"
	StateTimeout    ClusterJobState = "TIMEOUT"
	StateNodeFailed ClusterJobState = "NODE_FAIL"
	StateFailed     ClusterJobState = "FAILED"
	StateCancelled  ClusterJobState = "CANCELLED"
	StateUnknown    ClusterJobState = "UNKNOWN"
)

// String returns the string representation of the state.
func (s ClusterJobState) String() string {
	return string(s)
}

// IsTerminal returns true if the scheduler will not change this state anymore.
func (s ClusterJobState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateTimeout, StateNodeFailed, StateFailed, StateCancelled:
		return true
	}
	return false
}

// NeedsResubmit returns true for states that are recovered by submitting a
// fresh attempt with an escalated walltime.
func (s ClusterJobState) NeedsResubmit() bool {
	return s == StateTimeout || s == StateNodeFailed
}

// IsFatal returns true for states that abort the whole pipeline.
func (s ClusterJobState) IsFatal() bool {
	return s == StateFailed || s == StateCancelled
}

// ParseClusterState maps a raw scheduler state string to a ClusterJobState.
// Slurm decorates some states ("CANCELLED by 1234", "OUT_OF_MEMORY+"); only
// the leading keyword counts. Anything unrecognized maps to StateUnknown,
// which callers treat as transient, never as an error.
func ParseClusterState(raw string) ClusterJobState {
	word := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexAny(word, " +"); i >= 0 {
		word = word[:i]
	}

	switch ClusterJobState(word) {
	case StatePending, StateRunning, StateCompleted, StateTimeout,
		StateNodeFailed, StateFailed, StateCancelled:
		return ClusterJobState(word)
	}

	// COMPLETING means the job script finished and the scheduler is tearing
	// down the allocation; accounting reports COMPLETED shortly after.
	if word == "COMPLETING" {
		return StateRunning
	}

	return StateUnknown
}
