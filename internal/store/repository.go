/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the charge-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Charge ledger methods.
	// CreateChargeWithJob persists a new charge, its initial PENDING event, and the
	// PROCESS_CHARGE job that will drive it, in a single transaction. A charge
	// without its initiating event or its processing job is never observable.
	// Returns ErrDuplicateIdempotencyKey when the idempotency key is already taken.
	CreateChargeWithJob(ctx context.Context, charge *domain.Charge) error
	FindChargeByID(ctx context.Context, chargeID uuid.UUID) (*domain.Charge, error)
	FindChargeByIdempotencyKey(ctx context.Context, key string) (*domain.Charge, error)
	ListCharges(ctx context.Context) ([]domain.Charge, error)

	// Event log methods. Events are appended only from inside transactions owned by
	// the charge ledger or the job queue; the read side lists them in insertion order.
	ListChargeEvents(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeEvent, error)

	// Job queue methods.
	EnqueueJob(ctx context.Context, job *domain.ChargeJob) error
	// ClaimNextJob atomically takes exclusive ownership of the oldest eligible
	// PENDING job using a skip-locked row scan. A nil job with a nil error is the
	// normal empty-queue signal, not a failure.
	ClaimNextJob(ctx context.Context, workerID string) (*domain.ChargeJob, error)
	// CompleteJob transitions an IN_PROGRESS job owned by workerID to the given
	// terminal status. Repeating a completion that already happened is a no-op;
	// completing a job the caller never claimed returns ErrJobNotOwned.
	CompleteJob(ctx context.Context, jobID uuid.UUID, workerID string, status string) error
	// SucceedChargeAndCompleteJob applies a PROCESS_CHARGE job's effect (charge to
	// SUCCEEDED plus its event) and completes the job in one transaction, so the job
	// can never be COMPLETED without its effect having been committed.
	SucceedChargeAndCompleteJob(ctx context.Context, chargeID uuid.UUID, jobID uuid.UUID, workerID string) error
	FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.ChargeJob, error)
	ListJobsForCharge(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeJob, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
