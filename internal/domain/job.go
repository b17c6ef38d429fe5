/**
 * @description
 * This file defines the job-queue domain model. A ChargeJob is a unit of deferred
 * work pulled from the shared `charge_jobs` table by competing workers; its payload
 * is an opaque JSON document whose shape is owned by the handler registered for the
 * job's type.
 *
 * @notes
 * - Jobs are never deleted; terminal rows stay behind as an audit trail, with
 *   locked_at/locked_by recording which worker owned the attempt.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses. PENDING rows with run_at in the past are eligible for claiming;
// IN_PROGRESS rows always carry a non-null locked_by.
const (
	JobStatusPending    = "PENDING"
	JobStatusInProgress = "IN_PROGRESS"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// JobTypeProcessCharge drives a pending charge to SUCCEEDED.
const JobTypeProcessCharge = "PROCESS_CHARGE"

// ChargeJob represents one row of the work queue. This struct maps directly to
// the `charge_jobs` table.
type ChargeJob struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProcessChargePayload is the typed payload carried by PROCESS_CHARGE jobs.
type ProcessChargePayload struct {
	ChargeID uuid.UUID `json:"charge_id"`
}

// EncodeProcessChargePayload serializes the payload for persistence.
func EncodeProcessChargePayload(chargeID uuid.UUID) (json.RawMessage, error) {
	return json.Marshal(ProcessChargePayload{ChargeID: chargeID})
}

// DecodeProcessChargePayload parses a PROCESS_CHARGE job payload.
func DecodeProcessChargePayload(raw json.RawMessage) (ProcessChargePayload, error) {
	var payload ProcessChargePayload
	err := json.Unmarshal(raw, &payload)
	return payload, err
}
