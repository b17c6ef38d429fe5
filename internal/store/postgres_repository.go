/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface for
 * the charge ledger and the event log. It contains the idempotent-write transaction:
 * a charge row, its first lifecycle event, and its processing job commit together or
 * not at all, with duplicate idempotency keys surfaced as a typed sentinel error.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrChargeNotFound          = errors.New("charge not found")
	ErrJobNotFound             = errors.New("job not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrJobNotOwned             = errors.New("job not owned by caller")
)

// uniqueViolationCode is the SQLSTATE Postgres reports for uniqueness conflicts.
const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateChargeWithJob inserts a charge, its initial PENDING event, and the
// PROCESS_CHARGE job that will drive it, in one transaction. If any insert fails
// the whole transaction rolls back, leaving no charge row behind. A uniqueness
// violation on the idempotency key maps to ErrDuplicateIdempotencyKey so callers
// can run the replay/conflict branch of the protocol.
func (r *PostgresRepository) CreateChargeWithJob(ctx context.Context, charge *domain.Charge) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO charges (id, account_id, amount, currency, status, idempotency_key, request_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		charge.ID,
		charge.AccountID,
		charge.Amount,
		charge.Currency,
		charge.Status,
		charge.IdempotencyKey,
		charge.RequestHash,
	).Scan(&charge.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}

	if err := appendChargeEvent(ctx, tx, charge.ID, charge.Status); err != nil {
		return err
	}

	payload, err := domain.EncodeProcessChargePayload(charge.ID)
	if err != nil {
		return err
	}
	if err := enqueueJobTx(ctx, tx, &domain.ChargeJob{
		ID:      uuid.New(),
		Type:    domain.JobTypeProcessCharge,
		Payload: payload,
		Status:  domain.JobStatusPending,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// appendChargeEvent is the event log's write primitive. It is never independently
// transactional: callers own the surrounding transaction.
func appendChargeEvent(ctx context.Context, tx pgx.Tx, chargeID uuid.UUID, status string) error {
	query := `INSERT INTO charge_events (id, charge_id, status) VALUES ($1, $2, $3)`
	_, err := tx.Exec(ctx, query, uuid.New(), chargeID, status)
	return err
}

// FindChargeByID retrieves a charge by its unique identifier.
func (r *PostgresRepository) FindChargeByID(ctx context.Context, chargeID uuid.UUID) (*domain.Charge, error) {
	query := `
		SELECT id, account_id, amount, currency, status, idempotency_key, request_hash, created_at
		FROM charges
		WHERE id = $1
	`
	return r.scanCharge(r.db.QueryRow(ctx, query, chargeID))
}

// FindChargeByIdempotencyKey retrieves the canonical charge for a client-supplied key.
func (r *PostgresRepository) FindChargeByIdempotencyKey(ctx context.Context, key string) (*domain.Charge, error) {
	query := `
		SELECT id, account_id, amount, currency, status, idempotency_key, request_hash, created_at
		FROM charges
		WHERE idempotency_key = $1
	`
	return r.scanCharge(r.db.QueryRow(ctx, query, key))
}

func (r *PostgresRepository) scanCharge(row pgx.Row) (*domain.Charge, error) {
	var charge domain.Charge
	err := row.Scan(
		&charge.ID,
		&charge.AccountID,
		&charge.Amount,
		&charge.Currency,
		&charge.Status,
		&charge.IdempotencyKey,
		&charge.RequestHash,
		&charge.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &charge, nil
}

// ListCharges retrieves all charges, newest first.
func (r *PostgresRepository) ListCharges(ctx context.Context) ([]domain.Charge, error) {
	query := `
		SELECT id, account_id, amount, currency, status, idempotency_key, request_hash, created_at
		FROM charges
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []domain.Charge
	for rows.Next() {
		var charge domain.Charge
		err := rows.Scan(
			&charge.ID,
			&charge.AccountID,
			&charge.Amount,
			&charge.Currency,
			&charge.Status,
			&charge.IdempotencyKey,
			&charge.RequestHash,
			&charge.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		charges = append(charges, charge)
	}

	return charges, rows.Err()
}

// ListChargeEvents retrieves the status history for a charge in insertion order.
// The seq column breaks created_at ties.
func (r *PostgresRepository) ListChargeEvents(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeEvent, error) {
	query := `
		SELECT id, charge_id, status, created_at
		FROM charge_events
		WHERE charge_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.Query(ctx, query, chargeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ChargeEvent
	for rows.Next() {
		var event domain.ChargeEvent
		if err := rows.Scan(&event.ID, &event.ChargeID, &event.Status, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// Ping reports whether the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
