package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"gaproadmap/internal/ports"
)

// EnqueueRefresh queues a refresh for projectUID, reusing an already queued job.
func (db *DB) EnqueueRefresh(ctx context.Context, projectUID string) (string, error) {
	var jobID string
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO refresh_jobs (project_uid)
        VALUES ($1)
        ON CONFLICT (project_uid) WHERE status = 'queued' DO UPDATE SET queued_at = refresh_jobs.queued_at
        RETURNING id
    `, projectUID).Scan(&jobID)
	return jobID, err
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.RefreshJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id, project_uid FROM refresh_jobs
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.ProjectUID)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	if _, err = tx.Exec(ctx, `
        UPDATE refresh_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, job.ID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        UPDATE refresh_jobs SET status='completed', finished_at=now(), last_error=NULL WHERE id=$1
    `, jobID)
	return err
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        UPDATE refresh_jobs SET status='failed', finished_at=now(), last_error=$2 WHERE id=$1
    `, jobID, reason)
	return err
}

// StartJobForProject claims the queued job of a project, creating one when
// none is queued, and returns its id.
func (db *DB) StartJobForProject(ctx context.Context, projectUID string) (jobID string, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id FROM refresh_jobs
        WHERE project_uid = $1 AND status = 'queued'
        FOR UPDATE SKIP LOCKED
    `, projectUID).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
            INSERT INTO refresh_jobs (project_uid, status, started_at, attempts)
            VALUES ($1, 'running', now(), 1)
            RETURNING id
        `, projectUID).Scan(&jobID)
		return jobID, err
	}
	if err != nil {
		return "", err
	}
	if _, err = tx.Exec(ctx, `
        UPDATE refresh_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, jobID); err != nil {
		return "", err
	}
	return jobID, nil
}
