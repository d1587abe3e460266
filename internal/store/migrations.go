package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		work_dir    TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL DEFAULT 'running',
		group_count INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS step_groups (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		label       TEXT NOT NULL,
		outcome     TEXT NOT NULL DEFAULT 'running',
		jobs        INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT,
		PRIMARY KEY (run_id, label)
	)`,

	`CREATE TABLE IF NOT EXISTS job_submissions (
		id           TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		group_label  TEXT NOT NULL,
		script       TEXT NOT NULL,
		step_name    TEXT NOT NULL DEFAULT '',
		queue        TEXT NOT NULL DEFAULT '',
		tasks        INTEGER NOT NULL DEFAULT 0,
		walltime_sec INTEGER NOT NULL DEFAULT 0,
		scheduler_id TEXT NOT NULL DEFAULT '',
		attempt      INTEGER NOT NULL DEFAULT 1,
		state        TEXT NOT NULL DEFAULT 'PENDING',
		submitted_at TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_step_groups_run_id ON step_groups(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_job_submissions_run_id ON job_submissions(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_job_submissions_state ON job_submissions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
