package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Resync job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ResyncJob is an alignment job record.
type ResyncJob struct {
	ID           string     `json:"id"`
	TranscriptID int64      `json:"transcript_id"`
	Status       string     `json:"status"`
	AudioURL     string     `json:"audio_url,omitempty"`
	AudioPath    string     `json:"audio_path,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// ResyncJobFilter specifies filters for listing jobs.
type ResyncJobFilter struct {
	TranscriptID int64
	Status       string
	Limit        int
}

// InsertResyncJob records a newly queued job.
func (db *DB) InsertResyncJob(ctx context.Context, j *ResyncJob) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO resync_jobs (id, transcript_id, status, audio_url, audio_path)
		VALUES ($1, $2, $3, $4, $5)
	`, j.ID, j.TranscriptID, j.Status, pqString(j.AudioURL), pqString(j.AudioPath))
	if err != nil {
		return fmt.Errorf("insert resync job: %w", err)
	}
	return nil
}

// MarkResyncJobRunning stamps started_at.
func (db *DB) MarkResyncJobRunning(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE resync_jobs SET status = $2, started_at = now() WHERE id = $1
	`, id, JobRunning)
	return err
}

// FinishResyncJob records the terminal status and error message, if any.
func (db *DB) FinishResyncJob(ctx context.Context, id, status, errMsg string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE resync_jobs SET status = $2, error = $3, finished_at = now() WHERE id = $1
	`, id, status, pqString(errMsg))
	return err
}

// GetResyncJob returns a job by ID, or ErrNotFound.
func (db *DB) GetResyncJob(ctx context.Context, id string) (*ResyncJob, error) {
	rows, err := db.Pool.Query(ctx, selectResyncJobs+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get resync job: %w", err)
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanResyncJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resync job: %w", err)
	}
	return job, nil
}

// ListResyncJobs returns the most recent jobs matching the filter.
func (db *DB) ListResyncJobs(ctx context.Context, f ResyncJobFilter) ([]*ResyncJob, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, selectResyncJobs+`
		WHERE ($1::bigint IS NULL OR transcript_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, pqInt64(f.TranscriptID), pqString(f.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("list resync jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, scanResyncJob)
	if err != nil {
		return nil, fmt.Errorf("list resync jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*ResyncJob{}
	}
	return jobs, nil
}

// FailStaleResyncJobs marks jobs left queued or running by a previous process
// as failed. Called once at startup, before the worker pool accepts work.
func (db *DB) FailStaleResyncJobs(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE resync_jobs
		SET status = $1, error = 'interrupted by restart', finished_at = now()
		WHERE status IN ($2, $3)
	`, JobFailed, JobQueued, JobRunning)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeFinishedResyncJobs deletes terminal jobs older than retention.
func (db *DB) PurgeFinishedResyncJobs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM resync_jobs
		WHERE finished_at IS NOT NULL AND finished_at < now() - make_interval(secs => $1)
	`, retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const selectResyncJobs = `
	SELECT id::text, transcript_id, status, coalesce(audio_url, ''), coalesce(audio_path, ''),
		coalesce(error, ''), created_at, started_at, finished_at
	FROM resync_jobs`

func scanResyncJob(row pgx.CollectableRow) (*ResyncJob, error) {
	var j ResyncJob
	err := row.Scan(&j.ID, &j.TranscriptID, &j.Status, &j.AudioURL, &j.AudioPath,
		&j.Error, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	return &j, err
}
