package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultMaxAttempts is the number of failed attempts after which a job is failed.
const DefaultMaxAttempts = 3

const jobColumns = `id, youtube_id, status, attempts, locked_at, COALESCE(last_error, ''), created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.YouTubeID, &j.Status, &j.Attempts, &j.LockedAt,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// FailureStatus returns the status a job moves to after its attempts-th
// failed attempt: failed when the error is permanent or attempts reached
// maxAttempts, pending otherwise.
func FailureStatus(attempts, maxAttempts int, permanent bool) string {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if permanent || attempts >= maxAttempts {
		return JobFailed
	}
	return JobPending
}

// EnqueueJob adds a pending job for a video unless the video is already
// processed or a pending or processing job exists. Reports whether a job
// was created.
func (db *DB) EnqueueJob(ctx context.Context, youtubeID string) (bool, error) {
	tag, err := db.pool.Exec(ctx, `
		INSERT INTO ingest_jobs (youtube_id)
		SELECT $1::text
		WHERE NOT EXISTS (
			SELECT 1 FROM videos WHERE youtube_id = $1::text AND status = 'processed'
		)
		ON CONFLICT (youtube_id) WHERE status IN ('pending', 'processing') DO NOTHING`,
		youtubeID,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", youtubeID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimJob moves the oldest pending job to processing and returns it.
// Concurrent claimers never receive the same job. Returns ErrNoJobs when
// the queue is empty.
func (db *DB) ClaimJob(ctx context.Context) (*Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx, `
		UPDATE ingest_jobs
		SET status = 'processing', locked_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// CompleteJob marks a processing job done and its video processed.
func (db *DB) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		var youtubeID string
		err := tx.QueryRow(ctx, `
			UPDATE ingest_jobs
			SET status = 'done', locked_at = NULL, last_error = NULL, updated_at = now()
			WHERE id = $1 AND status = 'processing'
			RETURNING youtube_id`, jobID,
		).Scan(&youtubeID)
		if err != nil {
			return fmt.Errorf("complete job %s: %w", jobID, notFound(err))
		}
		_, err = tx.Exec(ctx, `
			UPDATE videos
			SET status = 'processed', error = NULL, processed_at = COALESCE(processed_at, now())
			WHERE youtube_id = $1`, youtubeID)
		if err != nil {
			return fmt.Errorf("mark video %s processed: %w", youtubeID, err)
		}
		return nil
	})
}

// FailJob records a failed attempt of a processing job and returns the
// job's new status. A job that ends failed also marks its video failed.
func (db *DB) FailJob(ctx context.Context, jobID uuid.UUID, reason string, permanent bool, maxAttempts int) (string, error) {
	var status string
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var (
			attempts  int
			youtubeID string
		)
		err := tx.QueryRow(ctx, `
			SELECT attempts, youtube_id FROM ingest_jobs
			WHERE id = $1 AND status = 'processing'
			FOR UPDATE`, jobID,
		).Scan(&attempts, &youtubeID)
		if err != nil {
			return fmt.Errorf("fail job %s: %w", jobID, notFound(err))
		}

		attempts++
		status = FailureStatus(attempts, maxAttempts, permanent)
		_, err = tx.Exec(ctx, `
			UPDATE ingest_jobs
			SET status = $2, attempts = $3, last_error = $4, locked_at = NULL, updated_at = now()
			WHERE id = $1`, jobID, status, attempts, reason)
		if err != nil {
			return fmt.Errorf("fail job %s: %w", jobID, err)
		}
		if status == JobFailed {
			return markVideoFailed(ctx, tx, youtubeID, reason)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// RecoverStaleJobs treats processing jobs locked longer than olderThan as a
// failed attempt: they return to pending, or fail once attempts reach
// maxAttempts. Returns the number of jobs touched.
func (db *DB) RecoverStaleJobs(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	reason := fmt.Sprintf("stale lock: processing longer than %s", olderThan)

	var n int64
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE ingest_jobs
			SET attempts = attempts + 1,
			    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
			    last_error = $3,
			    locked_at = NULL,
			    updated_at = now()
			WHERE status = 'processing' AND locked_at < now() - $1::interval
			RETURNING youtube_id, status`, olderThan, maxAttempts, reason)
		if err != nil {
			return fmt.Errorf("recover stale jobs: %w", err)
		}

		var failed []string
		for rows.Next() {
			var youtubeID, status string
			if err := rows.Scan(&youtubeID, &status); err != nil {
				rows.Close()
				return err
			}
			n++
			if status == JobFailed {
				failed = append(failed, youtubeID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range failed {
			if err := markVideoFailed(ctx, tx, id, reason); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

// GetJob returns one job by ID.
func (db *DB) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, jobID))
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

// QueueStats counts jobs by status.
func (db *DB) QueueStats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processing'),
		       COUNT(*) FILTER (WHERE status = 'done'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*)
		FROM ingest_jobs`,
	).Scan(&s.Pending, &s.Processing, &s.Done, &s.Failed, &s.Total)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	return s, nil
}
