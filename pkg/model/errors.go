package model

import "fmt"

// PlanningError reports a step expression that cannot be turned into a
// plan, such as an unknown step name or a non-positive step number.
type PlanningError struct {
	Expr   string
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning %q: %s", e.Expr, e.Reason)
}

// AdmissionErrorKind distinguishes admission outcomes that are worth
// retrying from those that are permanent.
type AdmissionErrorKind string

const (
	// AdmissionDeferred means the submission was held back by a busy
	// resource (site counters full, scheduler queue full) and should be
	// retried later.
	AdmissionDeferred AdmissionErrorKind = "deferred"
	// AdmissionRejected means the scheduler refused the job for a reason
	// that will not clear on its own, such as an invalid script or an
	// over-limit resource request.
	AdmissionRejected AdmissionErrorKind = "rejected"
)

// AdmissionError reports the outcome of a failed admission attempt for a
// single job unit.
type AdmissionError struct {
	Kind  AdmissionErrorKind
	Unit  JobUnit
	Cause error
}

func (e *AdmissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("admission %s for %s: %v", e.Kind, e.Unit.Name(), e.Cause)
	}
	return fmt.Sprintf("admission %s for %s", e.Kind, e.Unit.Name())
}

func (e *AdmissionError) Unwrap() error { return e.Cause }

// IsDeferred reports whether the submission can be retried later.
func (e *AdmissionError) IsDeferred() bool { return e.Kind == AdmissionDeferred }

// IsRejected reports whether the submission failed permanently.
func (e *AdmissionError) IsRejected() bool { return e.Kind == AdmissionRejected }

// ClusterJobFailure reports a job that reached a fatal scheduler state.
// One such failure aborts the whole workflow run.
type ClusterJobFailure struct {
	Unit        JobUnit
	SchedulerID string
	State       ClusterJobState
}

func (e *ClusterJobFailure) Error() string {
	return fmt.Sprintf("job %s (id %s) ended in state %s", e.Unit.Name(), e.SchedulerID, e.State)
}

// ValidationError reports a post-step check that found missing or bad
// outputs after all jobs of the step completed.
type ValidationError struct {
	Step   string
	Output string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %s: missing or invalid output %s", e.Step, e.Output)
}
