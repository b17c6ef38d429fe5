/**
 * @description
 * This file contains the worker loop. Each worker instance repeatedly claims one
 * job from the shared queue, executes its effect through the registered handler,
 * and finalizes it. Multiple instances run concurrently against the same queue;
 * the only coordination between them is the store's claim transaction.
 *
 * Per tick the worker moves Idle -> Claiming -> Executing -> Finalizing -> Idle.
 * A per-worker flag prevents a new tick from starting while a previous one is
 * still executing; no state is shared between worker instances in-process.
 *
 * @dependencies
 * - context, fmt, log, sync/atomic, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fintech/charge-service/internal/domain"
	"github.com/fintech/charge-service/internal/store"
)

// Worker polls the job queue and executes claimed jobs. The id must be unique
// per live instance so lock attribution on claimed rows stays meaningful.
type Worker struct {
	id           string
	repo         store.Repository
	handlers     map[string]JobHandler
	pollInterval time.Duration

	// tickActive is this worker's re-entrancy guard. It is owned by the worker
	// value; workers never share it.
	tickActive atomic.Bool
}

// NewWorker creates a worker with the given handlers registered by job type.
func NewWorker(id string, repo store.Repository, pollInterval time.Duration, handlers ...JobHandler) *Worker {
	registry := make(map[string]JobHandler, len(handlers))
	for _, h := range handlers {
		registry[h.Type()] = h
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		id:           id,
		repo:         repo,
		handlers:     registry,
		pollInterval: pollInterval,
	}
}

// ID returns the worker's lock attribution identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run polls the queue until the context is cancelled. A failing tick is logged
// and never crashes the loop; the worker simply returns to idle and polls again.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("level=info component=worker worker_id=%s msg=\"worker loop started\" poll_interval=%s", w.id, w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("level=info component=worker worker_id=%s msg=\"worker loop stopped\"", w.id)
			return
		case <-ticker.C:
		}

		if _, err := w.Tick(ctx); err != nil {
			log.Printf("level=error component=worker worker_id=%s msg=\"tick failed\" err=%v", w.id, err)
		}
	}
}

// Tick claims and processes at most one job. It reports whether a job was
// claimed; an empty queue is a normal outcome, not an error. When a previous
// tick is still in flight on this worker, the call is a no-op.
func (w *Worker) Tick(ctx context.Context) (bool, error) {
	if !w.tickActive.CompareAndSwap(false, true) {
		return false, nil
	}
	defer w.tickActive.Store(false)

	job, err := w.repo.ClaimNextJob(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.executeJob(ctx, job); err != nil {
		log.Printf("level=error component=worker worker_id=%s job_id=%s job_type=%s msg=\"job execution failed\" err=%v", w.id, job.ID, job.Type, err)
		if failErr := w.repo.CompleteJob(ctx, job.ID, w.id, domain.JobStatusFailed); failErr != nil {
			log.Printf("level=error component=worker worker_id=%s job_id=%s msg=\"job failure finalization failed\" err=%v", w.id, job.ID, failErr)
		}
		return true, fmt.Errorf("execute job %s: %w", job.ID, err)
	}
	return true, nil
}

// executeJob dispatches to the handler registered for the job's type. A panic in
// a handler is contained here so one bad job cannot take the worker down.
func (w *Worker) executeJob(ctx context.Context, job *domain.ChargeJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := w.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.Type)
	}
	return handler.Execute(ctx, job, w.id)
}
