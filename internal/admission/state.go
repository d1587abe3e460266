// Package admission enforces the site's resource ceilings before a job
// reaches the scheduler. Site limits are distinct from the scheduler's
// own queue limits and are deliberately checked first: a deferred unit
// costs nothing, a scheduler rejection costs a submission attempt.
package admission

import (
	"fmt"
	"sync"

	"github.com/geodesymiami/minsar-sub000/pkg/model"
)

// State tracks outstanding usage against the configured limits. All
// mutation goes through Reserve and Release under one mutex so a
// concurrent caller can never over-admit.
type State struct {
	limits model.ResourceLimits

	mu           sync.Mutex
	jobsPerQueue map[string]int
	tasksPerStep map[string]int
	totalTasks   int
	totalJobs    int
}

// NewState creates an empty usage tracker bound to limits. Zero-valued
// limit fields mean unlimited.
func NewState(limits model.ResourceLimits) *State {
	return &State{
		limits:       limits,
		jobsPerQueue: make(map[string]int),
		tasksPerStep: make(map[string]int),
	}
}

// Reserve accounts the unit if every limit allows it. The returned error
// names the exhausted budget; the caller wraps it as a deferred admission
// error and retries later.
func (s *State) Reserve(unit model.JobUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max := s.limits.MaxJobsPerQueue; max > 0 && s.jobsPerQueue[unit.QueueClass]+1 > max {
		return fmt.Errorf("queue %s at its %d-job limit", unit.QueueClass, max)
	}
	if max := s.limits.MaxTasksPerStep; max > 0 && s.tasksPerStep[unit.StepName]+unit.TaskCount > max {
		return fmt.Errorf("step %s task budget exhausted (%d of %d in use)",
			unit.StepName, s.tasksPerStep[unit.StepName], max)
	}
	if max := s.limits.MaxTotalTasks; max > 0 && s.totalTasks+unit.TaskCount > max {
		return fmt.Errorf("total task budget exhausted (%d of %d in use)", s.totalTasks, max)
	}

	s.jobsPerQueue[unit.QueueClass]++
	s.tasksPerStep[unit.StepName] += unit.TaskCount
	s.totalTasks += unit.TaskCount
	s.totalJobs++
	return nil
}

// Release returns the unit's reservation. Called when a job reaches a
// terminal state or when a later admission step fails.
func (s *State) Release(unit model.JobUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobsPerQueue[unit.QueueClass] > 0 {
		s.jobsPerQueue[unit.QueueClass]--
	}
	if s.tasksPerStep[unit.StepName] >= unit.TaskCount {
		s.tasksPerStep[unit.StepName] -= unit.TaskCount
	} else {
		s.tasksPerStep[unit.StepName] = 0
	}
	if s.totalTasks >= unit.TaskCount {
		s.totalTasks -= unit.TaskCount
	} else {
		s.totalTasks = 0
	}
	if s.totalJobs > 0 {
		s.totalJobs--
	}
}

// Usage is a point-in-time copy of the tracked counters.
type Usage struct {
	JobsPerQueue map[string]int `json:"jobs_per_queue"`
	TasksPerStep map[string]int `json:"tasks_per_step"`
	TotalTasks   int            `json:"total_tasks"`
	TotalJobs    int            `json:"total_jobs"`
}

// Snapshot returns a copy of the current usage for logging and the
// status endpoint.
func (s *State) Snapshot() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := Usage{
		JobsPerQueue: make(map[string]int, len(s.jobsPerQueue)),
		TasksPerStep: make(map[string]int, len(s.tasksPerStep)),
		TotalTasks:   s.totalTasks,
		TotalJobs:    s.totalJobs,
	}
	for q, n := range s.jobsPerQueue {
		u.JobsPerQueue[q] = n
	}
	for st, n := range s.tasksPerStep {
		u.TasksPerStep[st] = n
	}
	return u
}
