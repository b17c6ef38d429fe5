/**
 * @description
 * This file defines the typed job dispatch used by the worker loop. Each job type
 * has a handler that decodes its own strongly-typed payload and applies the job's
 * effect; the worker selects handlers by type instead of probing payload fields.
 *
 * @dependencies
 * - context, fmt, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication after a committed effect.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/fintech/charge-service/internal/store"
	"github.com/fintech/charge-service/pkg/rabbitmq"
)

// JobHandler applies the effect of one job type. Execute must leave the job in a
// terminal state only together with its committed effect: handlers finalize the
// job through a repository method that does both in one transaction.
type JobHandler interface {
	Type() string
	Execute(ctx context.Context, job *domain.ChargeJob, workerID string) error
}

// ProcessChargeHandler drives a pending charge to SUCCEEDED and completes the job
// atomically with that effect.
type ProcessChargeHandler struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
}

// NewProcessChargeHandler creates the handler for PROCESS_CHARGE jobs.
func NewProcessChargeHandler(repo store.Repository, producer rabbitmq.Publisher) *ProcessChargeHandler {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &ProcessChargeHandler{repo: repo, eventProducer: producer}
}

func (h *ProcessChargeHandler) Type() string {
	return domain.JobTypeProcessCharge
}

func (h *ProcessChargeHandler) Execute(ctx context.Context, job *domain.ChargeJob, workerID string) error {
	payload, err := domain.DecodeProcessChargePayload(job.Payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := h.repo.SucceedChargeAndCompleteJob(ctx, payload.ChargeID, job.ID, workerID); err != nil {
		return fmt.Errorf("succeed charge %s: %w", payload.ChargeID, err)
	}

	// The broker notification is at-least-once and happens after commit; a publish
	// failure must not unwind a committed status transition.
	charge, err := h.repo.FindChargeByID(ctx, payload.ChargeID)
	if err != nil {
		log.Printf("level=warn component=worker msg=\"charge lookup for event publish failed\" charge_id=%s err=%v", payload.ChargeID, err)
		return nil
	}
	event := rabbitmq.ChargeStatusEvent{
		ChargeID:  charge.ID,
		AccountID: charge.AccountID,
		Amount:    charge.Amount,
		Currency:  charge.Currency,
		Status:    charge.Status,
		Timestamp: time.Now(),
	}
	if err := h.eventProducer.PublishChargeStatusEvent(ctx, event); err != nil {
		log.Printf("level=warn component=worker msg=\"charge status event publish failed\" charge_id=%s status=%s err=%v", charge.ID, charge.Status, err)
	}
	return nil
}
