package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RunRepository records job runs in cache.db
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a job run repository over cache.db
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "job_runs").Logger(),
	}
}

// RecordStart opens a run row and returns its id
func (r *RunRepository) RecordStart(jobName string) (int64, error) {
	res, err := r.db.Exec(
		"INSERT INTO job_runs (job_name, status) VALUES (?, 'running')", jobName)
	if err != nil {
		return 0, fmt.Errorf("failed to record job start: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// RecordFinish closes a run row with its outcome
func (r *RunRepository) RecordFinish(runID int64, runErr error, duration time.Duration) error {
	status := "success"
	var errText interface{}
	if runErr != nil {
		status = "failed"
		errText = runErr.Error()
	}
	_, err := r.db.Exec(`
		UPDATE job_runs
		SET finished_at = datetime('now'), status = ?, error = ?, duration_ms = ?
		WHERE id = ?`,
		status, errText, duration.Milliseconds(), runID)
	if err != nil {
		return fmt.Errorf("failed to record job finish: %w", err)
	}
	return nil
}

// JobRun is one recorded execution
type JobRun struct {
	ID         int64   `json:"id"`
	JobName    string  `json:"job_name"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	DurationMs *int64  `json:"duration_ms,omitempty"`
}

// Recent returns the latest runs, newest first; the system surface tail
func (r *RunRepository) Recent(limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, job_name, started_at, finished_at, status, error, duration_ms
		FROM job_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var jr JobRun
		var finished, errText sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&jr.ID, &jr.JobName, &jr.StartedAt, &finished, &jr.Status, &errText, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		if finished.Valid {
			jr.FinishedAt = &finished.String
		}
		if errText.Valid {
			jr.Error = &errText.String
		}
		if duration.Valid {
			jr.DurationMs = &duration.Int64
		}
		out = append(out, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job run iteration failed: %w", err)
	}
	return out, nil
}

// PruneOlderThan drops run history past the retention window
func (r *RunRepository) PruneOlderThan(days int) (int64, error) {
	res, err := r.db.Exec(
		"DELETE FROM job_runs WHERE started_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune job runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
