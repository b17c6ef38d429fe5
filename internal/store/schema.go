/**
 * @description
 * This file bootstraps the persisted state layout: the three relations of the
 * charge-service plus the indexes its two protocols depend on (the uniqueness
 * constraint on idempotency_key for conflict detection, the (status, run_at)
 * index for the queue's eligibility scan, and the owning-charge index on the
 * event log). Statements are idempotent so every instance can run them at boot.
 */

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS charges (
		id              UUID PRIMARY KEY,
		account_id      UUID NOT NULL,
		amount          BIGINT NOT NULL,
		currency        TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'PENDING',
		idempotency_key TEXT NOT NULL UNIQUE,
		request_hash    TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT charges_amount_positive CHECK (amount > 0),
		CONSTRAINT charges_currency_non_empty CHECK (length(currency) > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS charge_events (
		id         UUID PRIMARY KEY,
		seq        BIGSERIAL,
		charge_id  UUID NOT NULL REFERENCES charges (id),
		status     TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS charge_events_charge_id_idx ON charge_events (charge_id)`,
	`CREATE TABLE IF NOT EXISTS charge_jobs (
		id           UUID PRIMARY KEY,
		type         TEXT NOT NULL,
		payload      JSONB NOT NULL,
		status       TEXT NOT NULL DEFAULT 'PENDING',
		run_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		attempts     INTEGER NOT NULL DEFAULT 0,
		locked_at    TIMESTAMPTZ,
		locked_by    TEXT,
		completed_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS charge_jobs_status_run_at_idx ON charge_jobs (status, run_at)`,
}

// EnsureSchema creates the service's tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
