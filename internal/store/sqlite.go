package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/geodesymiami/minsar-sub000/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Run lifecycle ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	outcome := run.Outcome
	if outcome == "" {
		outcome = "running"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, work_dir, outcome, group_count, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.WorkDir, outcome, run.Groups,
		run.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id, outcome string) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "outcome", outcome)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, finished_at = ? WHERE id = ?`,
		outcome, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run model.Run
	var startedAt string
	var finishedAt *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, work_dir, outcome, group_count, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.WorkDir, &run.Outcome, &run.Groups, &startedAt, &finishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", limit)

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_dir, outcome, group_count, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		var startedAt string
		var finishedAt *string

		if err := rows.Scan(&run.ID, &run.WorkDir, &run.Outcome, &run.Groups,
			&startedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// --- Step groups ---

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *model.StepGroup) error {
	s.logger.Debug("sql", "op", "insert", "table", "step_groups", "run_id", g.RunID, "label", g.Label)

	outcome := g.Outcome
	if outcome == "" {
		outcome = "running"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_groups (run_id, label, outcome, jobs, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		g.RunID, g.Label, outcome, g.Jobs,
		g.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) FinishGroup(ctx context.Context, runID, label, outcome string) error {
	s.logger.Debug("sql", "op", "update", "table", "step_groups", "run_id", runID, "label", label)

	result, err := s.db.ExecContext(ctx,
		`UPDATE step_groups SET outcome = ?, finished_at = ? WHERE run_id = ? AND label = ?`,
		outcome, time.Now().UTC().Format(time.RFC3339Nano), runID, label,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("group %s of run %s not found", label, runID)
	}
	return nil
}

func (s *SQLiteStore) ListGroupsByRun(ctx context.Context, runID string) ([]*model.StepGroup, error) {
	s.logger.Debug("sql", "op", "list", "table", "step_groups", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, label, outcome, jobs, started_at, finished_at
		 FROM step_groups WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*model.StepGroup
	for rows.Next() {
		var g model.StepGroup
		var startedAt string
		var finishedAt *string

		if err := rows.Scan(&g.RunID, &g.Label, &g.Outcome, &g.Jobs,
			&startedAt, &finishedAt); err != nil {
			return nil, err
		}
		g.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt != nil {
			t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
			g.FinishedAt = &t
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

// --- Job submissions ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.JobRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "job_submissions", "id", job.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_submissions (id, run_id, group_label, script, step_name, queue,
		 tasks, walltime_sec, scheduler_id, attempt, state, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RunID, job.GroupLabel,
		job.Unit.Path, job.Unit.StepName, job.Unit.QueueClass,
		job.Unit.TaskCount, int64(job.Unit.RequestedWalltime.Seconds()),
		job.SchedulerID, job.Attempt, string(job.State),
		job.SubmittedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// UpdateJob persists the mutable fields of a submission record. It reports
// whether a row was updated, so callers can insert records first seen
// mid-run (resubmission replacements).
func (s *SQLiteStore) UpdateJob(ctx context.Context, rec *model.SubmissionRecord) (bool, error) {
	s.logger.Debug("sql", "op", "update", "table", "job_submissions", "id", rec.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE job_submissions SET scheduler_id = ?, attempt = ?, state = ?,
		 walltime_sec = ?, submitted_at = ?, updated_at = ? WHERE id = ?`,
		rec.SchedulerID, rec.Attempt, string(rec.State),
		int64(rec.Unit.RequestedWalltime.Seconds()),
		rec.SubmittedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ListJobsByRun(ctx context.Context, runID string) ([]*model.JobRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "job_submissions", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, group_label, script, step_name, queue,
		 tasks, walltime_sec, scheduler_id, attempt, state, submitted_at, updated_at
		 FROM job_submissions WHERE run_id = ? ORDER BY submitted_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.JobRecord
	for rows.Next() {
		var job model.JobRecord
		var walltimeSec int64
		var state, submittedAt, updatedAt string

		if err := rows.Scan(&job.ID, &job.RunID, &job.GroupLabel,
			&job.Unit.Path, &job.Unit.StepName, &job.Unit.QueueClass,
			&job.Unit.TaskCount, &walltimeSec,
			&job.SchedulerID, &job.Attempt, &state, &submittedAt, &updatedAt); err != nil {
			return nil, err
		}

		job.Unit.RequestedWalltime = time.Duration(walltimeSec) * time.Second
		job.State = model.ClusterJobState(state)
		job.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
