/**
 * @description
 * This file defines the core domain models for the charge-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - The request hash is computed over the semantically significant submission
 *   fields only; the idempotency key itself is not part of the hash.
 */

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Charge statuses. There is no failed status for charges today: a job that fails
// leaves its charge pending (see ChargeJob statuses).
const (
	ChargeStatusPending   = "PENDING"
	ChargeStatusSucceeded = "SUCCEEDED"
)

// Charge represents a requested monetary movement. This struct maps directly to
// the `charges` table.
type Charge struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"account_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	RequestHash    string    `json:"request_hash"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChargeEvent is an immutable fact: this charge reached this status at this time.
// Events are append-only; the first PENDING event is written in the same
// transaction as the charge itself.
type ChargeEvent struct {
	ID        uuid.UUID `json:"id"`
	ChargeID  uuid.UUID `json:"charge_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitChargeRequest is the DTO for incoming charge submission API requests.
type SubmitChargeRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Submission outcomes. Replayed means the key was already accepted with an
// identical payload and the canonical charge is returned unchanged.
const (
	SubmitOutcomeCreated  = "created"
	SubmitOutcomeReplayed = "replayed"
)

// SubmitChargeResult pairs the canonical charge with how the submission resolved.
type SubmitChargeResult struct {
	Outcome string  `json:"outcome"`
	Charge  *Charge `json:"charge"`
}

// requestDigestFields fixes the field order of the hashed tuple. encoding/json
// emits struct fields in declaration order, so the digest is stable across
// retries and processes.
type requestDigestFields struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// ComputeRequestHash returns the deterministic hex digest of the semantically
// significant submission fields (account, amount, currency). Every retry of the
// same logical request must produce the same hash.
func ComputeRequestHash(accountID string, amount int64, currency string) string {
	payload, _ := json.Marshal(requestDigestFields{
		AccountID: strings.TrimSpace(accountID),
		Amount:    amount,
		Currency:  strings.TrimSpace(currency),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
