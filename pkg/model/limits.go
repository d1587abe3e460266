package model

// ResourceLimits are the site-defined admission ceilings, read once at
// startup and immutable for the life of a run. They are enforced before
// the scheduler's own acceptance checks. A zero field means unlimited.
type ResourceLimits struct {
	MaxJobsPerQueue int `json:"max_jobs_per_queue" yaml:"max_jobs_per_queue"`
	MaxTasksPerStep int `json:"max_tasks_per_step" yaml:"max_tasks_per_step"`
	MaxTotalTasks   int `json:"max_total_tasks" yaml:"max_total_tasks"`
}
