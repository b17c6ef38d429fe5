/**
 * @description
 * This file provides the PostgreSQL implementation of the job-queue side of the
 * `Repository` interface. The claim protocol lives here: a FOR UPDATE SKIP LOCKED
 * scan hands each PENDING row to at most one of any number of concurrent workers,
 * and job completion is structurally scoped to the claiming worker's lock.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, type, payload, status, run_at, attempts, locked_at, locked_by, completed_at, created_at`

// enqueueJobTx inserts a PENDING job inside a caller-owned transaction. A zero
// RunAt means eligible immediately.
func enqueueJobTx(ctx context.Context, tx pgx.Tx, job *domain.ChargeJob) error {
	query := `
		INSERT INTO charge_jobs (id, type, payload, status, run_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING run_at, created_at
	`
	var runAt *time.Time
	if !job.RunAt.IsZero() {
		runAt = &job.RunAt
	}
	return tx.QueryRow(ctx, query, job.ID, job.Type, job.Payload, job.Status, runAt).
		Scan(&job.RunAt, &job.CreatedAt)
}

// EnqueueJob inserts a standalone PENDING job in its own transaction.
func (r *PostgresRepository) EnqueueJob(ctx context.Context, job *domain.ChargeJob) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if err := enqueueJobTx(ctx, tx, job); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClaimNextJob takes exclusive ownership of the oldest eligible PENDING job.
// The SKIP LOCKED clause is load-bearing: rows held by another in-flight claim are
// passed over instead of blocked on, so concurrent workers never serialize on the
// same candidate row. Returns (nil, nil) when the queue is empty.
func (r *PostgresRepository) ClaimNextJob(ctx context.Context, workerID string) (*domain.ChargeJob, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	selectQuery := `
		SELECT ` + jobColumns + `
		FROM charge_jobs
		WHERE status = $1 AND run_at <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`
	var job domain.ChargeJob
	err = tx.QueryRow(ctx, selectQuery, domain.JobStatusPending).Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.RunAt,
		&job.Attempts,
		&job.LockedAt,
		&job.LockedBy,
		&job.CompletedAt,
		&job.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	updateQuery := `
		UPDATE charge_jobs
		SET status = $2, locked_at = NOW(), locked_by = $3, attempts = attempts + 1
		WHERE id = $1
		RETURNING locked_at
	`
	var lockedAt time.Time
	if err := tx.QueryRow(ctx, updateQuery, job.ID, domain.JobStatusInProgress, workerID).Scan(&lockedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusInProgress
	job.LockedAt = &lockedAt
	job.LockedBy = &workerID
	job.Attempts++
	return &job, nil
}

// CompleteJob moves an IN_PROGRESS job owned by workerID to a terminal status.
// The ownership scope in the WHERE clause is the structural guard: a caller that
// never claimed the job cannot finalize it.
func (r *PostgresRepository) CompleteJob(ctx context.Context, jobID uuid.UUID, workerID string, status string) error {
	query := `
		UPDATE charge_jobs
		SET status = $3, completed_at = NOW()
		WHERE id = $1 AND locked_by = $2 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, jobID, workerID, status, domain.JobStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.resolveMissedCompletion(ctx, jobID, workerID, status)
	}
	return nil
}

// resolveMissedCompletion distinguishes a harmless duplicate completion from a
// completion attempt by a caller that does not own the job.
func (r *PostgresRepository) resolveMissedCompletion(ctx context.Context, jobID uuid.UUID, workerID string, status string) error {
	job, err := r.FindJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == status && job.LockedBy != nil && *job.LockedBy == workerID {
		// Same worker signaling the same terminal outcome again: no-op.
		return nil
	}
	return ErrJobNotOwned
}

// SucceedChargeAndCompleteJob marks the charge SUCCEEDED, appends its SUCCEEDED
// event, and completes the driving job, all in one transaction. Either the domain
// effect and the completion commit together, or neither does.
func (r *PostgresRepository) SucceedChargeAndCompleteJob(ctx context.Context, chargeID uuid.UUID, jobID uuid.UUID, workerID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	jobQuery := `
		UPDATE charge_jobs
		SET status = $3, completed_at = NOW()
		WHERE id = $1 AND locked_by = $2 AND status = $4
	`
	tag, err := tx.Exec(ctx, jobQuery, jobID, workerID, domain.JobStatusCompleted, domain.JobStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.resolveMissedCompletion(ctx, jobID, workerID, domain.JobStatusCompleted)
	}

	chargeQuery := `UPDATE charges SET status = $2 WHERE id = $1`
	chargeTag, err := tx.Exec(ctx, chargeQuery, chargeID, domain.ChargeStatusSucceeded)
	if err != nil {
		return err
	}
	if chargeTag.RowsAffected() == 0 {
		return ErrChargeNotFound
	}

	if err := appendChargeEvent(ctx, tx, chargeID, domain.ChargeStatusSucceeded); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindJobByID retrieves a single job row.
func (r *PostgresRepository) FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.ChargeJob, error) {
	query := `SELECT ` + jobColumns + ` FROM charge_jobs WHERE id = $1`
	var job domain.ChargeJob
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.RunAt,
		&job.Attempts,
		&job.LockedAt,
		&job.LockedBy,
		&job.CompletedAt,
		&job.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobsForCharge retrieves the jobs whose payload references a charge, oldest
// first. Payloads are opaque jsonb; the charge reference is the one field the
// queue is allowed to index into.
func (r *PostgresRepository) ListJobsForCharge(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM charge_jobs
		WHERE payload->>'charge_id' = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, chargeID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ChargeJob
	for rows.Next() {
		var job domain.ChargeJob
		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Payload,
			&job.Status,
			&job.RunAt,
			&job.Attempts,
			&job.LockedAt,
			&job.LockedBy,
			&job.CompletedAt,
			&job.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
