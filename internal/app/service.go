/**
 * @description
 * This file contains the core business logic for the charge-service. The `Service`
 * struct orchestrates charge submission, coordinating between the database
 * repository and the message broker.
 *
 * Key features:
 * - Implements the idempotent-write protocol: a retried submission with the same
 *   idempotency key and payload replays the canonical charge, while a reused key
 *   with a divergent payload is a permanent conflict.
 * - Ensures transactional integrity: the charge row, its first lifecycle event,
 *   and its processing job commit together through the repository.
 * - Publishes charge status events to RabbitMQ for asynchronous consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/fintech/charge-service/internal/store"
	"github.com/fintech/charge-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

// ErrIdempotencyConflict signals that an idempotency key was reused with a
// different payload. The caller must not retry with this key.
var ErrIdempotencyConflict = errors.New("idempotency key already used with a different payload")

// ValidationError describes a malformed submission, rejected before any
// transaction is opened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError signals that a submitter exceeded the configured rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// RateBudget is the state of a submission window after one attempt was counted
// against it.
type RateBudget struct {
	// Count is the number of attempts seen in the current window, this one included.
	Count int
	// RetryAfterSeconds is how long until the window resets.
	RetryAfterSeconds int
}

// Exhausted reports whether the counted attempt overran the given limit.
func (b RateBudget) Exhausted(limit int) bool {
	return b.Count > limit
}

// SubmitRateLimiter counts a submission attempt against a per-subject window.
type SubmitRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (RateBudget, error)
}

// Service provides the core business logic for charges.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher

	rateLimiter          SubmitRateLimiter
	submitLimitPerMinute int
}

// NewService creates a new charge service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
	}
}

// SetSubmitRateLimiter enables per-account submission rate limiting. A nil
// limiter or a non-positive limit leaves submissions unthrottled.
func (s *Service) SetSubmitRateLimiter(limiter SubmitRateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.submitLimitPerMinute = limitPerMinute
}

// SubmitCharge accepts a monetary charge request at most once per idempotency key.
// The outcome is one of:
//   - created: first acceptance of the key; charge, initial event, and processing
//     job were committed atomically.
//   - replayed: the key was already accepted with an identical payload; the
//     canonical charge is returned.
//   - ErrIdempotencyConflict: the key was already accepted with a different payload.
func (s *Service) SubmitCharge(ctx context.Context, req domain.SubmitChargeRequest) (*domain.SubmitChargeResult, error) {
	accountID, err := validateSubmission(req)
	if err != nil {
		return nil, err
	}

	if err := s.consumeSubmitBudget(ctx, accountID); err != nil {
		return nil, err
	}

	requestHash := domain.ComputeRequestHash(req.AccountID, req.Amount, req.Currency)
	charge := &domain.Charge{
		ID:             uuid.New(),
		AccountID:      accountID,
		Amount:         req.Amount,
		Currency:       strings.TrimSpace(req.Currency),
		Status:         domain.ChargeStatusPending,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    requestHash,
	}

	err = s.repo.CreateChargeWithJob(ctx, charge)
	if err == nil {
		s.publishStatusEvent(ctx, charge)
		return &domain.SubmitChargeResult{Outcome: domain.SubmitOutcomeCreated, Charge: charge}, nil
	}
	if !errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	// The key is taken. When two callers race, exactly one insert wins and the
	// other lands here; both must end up agreeing on the same charge id.
	existing, err := s.repo.FindChargeByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("load charge for idempotency key: %w", err)
	}
	if existing.RequestHash != requestHash {
		log.Printf("level=warn component=app op=submit_charge outcome=conflict idempotency_key=%s charge_id=%s", req.IdempotencyKey, existing.ID)
		return nil, ErrIdempotencyConflict
	}
	return &domain.SubmitChargeResult{Outcome: domain.SubmitOutcomeReplayed, Charge: existing}, nil
}

func validateSubmission(req domain.SubmitChargeRequest) (uuid.UUID, error) {
	if strings.TrimSpace(req.AccountID) == "" {
		return uuid.Nil, &ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	accountID, err := uuid.Parse(strings.TrimSpace(req.AccountID))
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "account_id", Reason: "must be a valid UUID"}
	}
	if req.Amount <= 0 {
		return uuid.Nil, &ValidationError{Field: "amount", Reason: "must be a positive integer"}
	}
	if strings.TrimSpace(req.Currency) == "" {
		return uuid.Nil, &ValidationError{Field: "currency", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return uuid.Nil, &ValidationError{Field: "idempotency_key", Reason: "must not be empty"}
	}
	return accountID, nil
}

func (s *Service) consumeSubmitBudget(ctx context.Context, accountID uuid.UUID) error {
	if s.rateLimiter == nil || s.submitLimitPerMinute <= 0 {
		return nil
	}
	budget, err := s.rateLimiter.ConsumeRateLimit(ctx, "charge_submit", accountID.String(), s.submitLimitPerMinute, time.Minute)
	if err != nil {
		// The limiter is an availability guard, not a correctness one: when it is
		// unreachable, submissions proceed.
		log.Printf("level=warn component=app op=submit_charge msg=\"rate limiter unavailable; allowing request\" account_id=%s err=%v", accountID, err)
		return nil
	}
	if budget.Exhausted(s.submitLimitPerMinute) {
		return &RateLimitError{RetryAfterSeconds: budget.RetryAfterSeconds}
	}
	return nil
}

func (s *Service) publishStatusEvent(ctx context.Context, charge *domain.Charge) {
	event := rabbitmq.ChargeStatusEvent{
		ChargeID:  charge.ID,
		AccountID: charge.AccountID,
		Amount:    charge.Amount,
		Currency:  charge.Currency,
		Status:    charge.Status,
		Timestamp: time.Now(),
	}
	if err := s.eventProducer.PublishChargeStatusEvent(ctx, event); err != nil {
		log.Printf("level=warn component=app msg=\"charge status event publish failed\" charge_id=%s status=%s err=%v", charge.ID, charge.Status, err)
	}
}

// GetCharge fetches a charge by id.
func (s *Service) GetCharge(ctx context.Context, chargeID uuid.UUID) (*domain.Charge, error) {
	return s.repo.FindChargeByID(ctx, chargeID)
}

// ListCharges fetches all charges.
func (s *Service) ListCharges(ctx context.Context) ([]domain.Charge, error) {
	return s.repo.ListCharges(ctx)
}

// ListChargeEvents fetches the status history of a charge in insertion order.
// The sequence may be empty when the charge id is unknown.
func (s *Service) ListChargeEvents(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeEvent, error) {
	return s.repo.ListChargeEvents(ctx, chargeID)
}

// ListChargeJobs fetches the queue entries associated with a charge.
func (s *Service) ListChargeJobs(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeJob, error) {
	return s.repo.ListJobsForCharge(ctx, chargeID)
}

// PingStore reports whether the backing store is reachable.
func (s *Service) PingStore(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
