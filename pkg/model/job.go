package model

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// JobUnit is one schedulable job description: a batch script on disk plus
// the resource attributes parsed from it. JobUnit is a value type; a unit
// with an outstanding SubmissionRecord is never mutated, resubmission
// derives a fresh unit via WithWalltime.
type JobUnit struct {
	Path              string        `json:"path"`
	StepName          string        `json:"step_name"`
	RequestedWalltime time.Duration `json:"requested_walltime"`
	TaskCount         int           `json:"task_count"`
	QueueClass        string        `json:"queue_class"`
}

// Name returns the base file name of the job script, the identity used in
// logs and diagnostics.
func (u JobUnit) Name() string {
	return filepath.Base(u.Path)
}

// WithWalltime returns a copy of the unit with the requested walltime
// replaced. The receiver is left untouched.
func (u JobUnit) WithWalltime(d time.Duration) JobUnit {
	u.RequestedWalltime = d
	return u
}

// JobGroupSelector identifies the set of JobUnits belonging to one pipeline
// step, or a single explicit unit in single-job mode (Step == 0).
type JobGroupSelector struct {
	Step    int    `json:"step"`
	Pattern string `json:"pattern"`
}

// SingleUnit builds a selector for exactly one job script, bypassing step
// numbering entirely.
func SingleUnit(path string) JobGroupSelector {
	return JobGroupSelector{Pattern: path}
}

// Label returns the selector's identity for logging: the step number when
// it has one, otherwise the pattern.
func (s JobGroupSelector) Label() string {
	if s.Step > 0 {
		return fmt.Sprintf("step %d", s.Step)
	}
	return s.Pattern
}

// StepSelector is one endpoint of a requested step range: either a numeric
// step or a named pipeline stage resolved through the alias table. The zero
// value means "not specified".
type StepSelector struct {
	Num  int
	Name string
}

// ParseStepSelector classifies a CLI token as numeric or named. Validity of
// a name is decided at Resolve time, against the alias table.
func ParseStepSelector(token string) StepSelector {
	token = strings.TrimSpace(token)
	if token == "" {
		return StepSelector{}
	}
	if n, err := strconv.Atoi(token); err == nil {
		return StepSelector{Num: n}
	}
	return StepSelector{Name: token}
}

// IsZero reports whether the selector was left unspecified.
func (s StepSelector) IsZero() bool {
	return s.Num == 0 && s.Name == ""
}

// Resolve returns the step number for this selector. Named selectors go
// through the alias table; an unknown name is a PlanningError.
func (s StepSelector) Resolve(aliases map[string]int) (int, error) {
	if s.Name == "" {
		if s.Num <= 0 {
			return 0, &PlanningError{Expr: strconv.Itoa(s.Num), Reason: "step number must be positive"}
		}
		return s.Num, nil
	}
	n, ok := aliases[s.Name]
	if !ok {
		return 0, &PlanningError{Expr: s.Name, Reason: "unknown step name"}
	}
	return n, nil
}
