package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateJob inserts a new ingestion job in the queued state.
func (db *DB) CreateJob(ctx context.Context, university, directoryURL string) (IngestionJob, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (university, directory_url, status)
		VALUES ($1, $2, $3)
		RETURNING id, university, directory_url, status, total_faculty, processed_faculty,
			COALESCE(error, ''), created_at, updated_at
	`, university, directoryURL, JobStatusQueued)

	return scanJob(row)
}

// SetTotalFaculty records the roster size once the directory harvest
// finishes, transitioning the job to processing.
func (db *DB) SetTotalFaculty(ctx context.Context, jobID string, total int) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET total_faculty = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, jobID, total, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("set total faculty: %w", err)
	}

	return nil
}

// IncrementProgress atomically increments processed_faculty by one in a
// single UPDATE statement, never via a read-modify-write round trip, and
// reports whether that increment brought the job to completion so the
// caller can flip the status exactly once.
func (db *DB) IncrementProgress(ctx context.Context, jobID string) (done bool, err error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE ingestion_jobs
		SET processed_faculty = processed_faculty + 1, updated_at = now()
		WHERE id = $1
		RETURNING processed_faculty >= total_faculty
	`, jobID)

	if err := row.Scan(&done); err != nil {
		return false, fmt.Errorf("increment progress: %w", err)
	}

	if done {
		if _, err := db.Pool.Exec(ctx, `
			UPDATE ingestion_jobs SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3
		`, jobID, JobStatusCompleted, JobStatusProcessing); err != nil {
			return true, fmt.Errorf("mark job completed: %w", err)
		}
	}

	return done, nil
}

// ClaimQueuedJob atomically claims the oldest queued job, transitioning it
// to processing so a concurrently-polling ingestor instance can't pick up
// the same job. Returns ok=false when the queue is empty.
func (db *DB) ClaimQueuedJob(ctx context.Context) (job IngestionJob, ok bool, err error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE ingestion_jobs
		SET status = $2, updated_at = now()
		WHERE id = (
			SELECT id FROM ingestion_jobs
			WHERE status = $1
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, university, directory_url, status, total_faculty, processed_faculty,
			COALESCE(error, ''), created_at, updated_at
	`, JobStatusQueued, JobStatusProcessing)

	job, err = scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IngestionJob{}, false, nil
		}

		return IngestionJob{}, false, fmt.Errorf("claim queued job: %w", err)
	}

	return job, true, nil
}

// FailJob transitions a job to the failed state, recording the error that
// caused it. Used for failures that abort the whole job (e.g. the directory
// could not be harvested at all), not per-professor failures, which are
// swallowed and counted as processed instead.
func (db *DB) FailJob(ctx context.Context, jobID string, cause error) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1
	`, jobID, JobStatusFailed, cause.Error())
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}

	return nil
}

func scanJob(row interface {
	Scan(dest ...any) error
}) (IngestionJob, error) {
	var j IngestionJob

	err := row.Scan(&j.ID, &j.University, &j.DirectoryURL, &j.Status, &j.TotalFaculty,
		&j.ProcessedFaculty, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return IngestionJob{}, fmt.Errorf("scan job: %w", err)
	}

	return j, nil
}
