/**
 * @description
 * This file contains the HTTP handlers for the charge-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/fintech/charge-service/internal/app"
	"github.com/fintech/charge-service/internal/domain"
	"github.com/fintech/charge-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ChargeHandlers holds the application service that handlers will use.
type ChargeHandlers struct {
	service *app.Service
}

// NewChargeHandlers creates a new instance of ChargeHandlers.
func NewChargeHandlers(service *app.Service) *ChargeHandlers {
	return &ChargeHandlers{service: service}
}

// SubmitChargeHandler handles POST /charges. A first acceptance returns 201, an
// idempotent replay returns 200 with the canonical charge, and a reused key with
// a divergent payload returns 409.
func (h *ChargeHandlers) SubmitChargeHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=submit_charge outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.SubmitCharge(r.Context(), req)
	if err != nil {
		var validationErr *app.ValidationError
		if errors.As(err, &validationErr) {
			log.Printf("level=warn component=api endpoint=submit_charge outcome=reject reason=validation err=%v", validationErr)
			h.writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		var rateLimitErr *app.RateLimitError
		if errors.As(err, &rateLimitErr) {
			w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "Too many charge submissions. Please retry later.")
			return
		}
		if errors.Is(err, app.ErrIdempotencyConflict) {
			h.writeJSON(w, http.StatusConflict, map[string]string{
				"error": "Idempotency key already used",
				"code":  "idempotency_key_conflict",
			})
			return
		}
		log.Printf("level=error component=api endpoint=submit_charge outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusCreated
	if result.Outcome == domain.SubmitOutcomeReplayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result.Charge)
}

// ListChargesHandler handles GET /charges.
func (h *ChargeHandlers) ListChargesHandler(w http.ResponseWriter, r *http.Request) {
	charges, err := h.service.ListCharges(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_charges err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if charges == nil {
		charges = []domain.Charge{}
	}
	h.writeJSON(w, http.StatusOK, charges)
}

// GetChargeHandler handles GET /charges/{id}.
func (h *ChargeHandlers) GetChargeHandler(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.parseChargeID(w, r)
	if !ok {
		return
	}

	charge, err := h.service.GetCharge(r.Context(), chargeID)
	if err != nil {
		if errors.Is(err, store.ErrChargeNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Charge not found", "id": chargeID.String()})
			return
		}
		log.Printf("level=error component=api endpoint=get_charge charge_id=%s err=%v", chargeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, charge)
}

// ListChargeEventsHandler handles GET /charges/{id}/events. The history is
// returned oldest first; an unknown charge id yields an empty sequence.
func (h *ChargeHandlers) ListChargeEventsHandler(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.parseChargeID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListChargeEvents(r.Context(), chargeID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_charge_events charge_id=%s err=%v", chargeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if events == nil {
		events = []domain.ChargeEvent{}
	}
	h.writeJSON(w, http.StatusOK, events)
}

// ListChargeJobsHandler handles GET /charges/{id}/jobs.
func (h *ChargeHandlers) ListChargeJobsHandler(w http.ResponseWriter, r *http.Request) {
	chargeID, ok := h.parseChargeID(w, r)
	if !ok {
		return
	}

	jobs, err := h.service.ListChargeJobs(r.Context(), chargeID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_charge_jobs charge_id=%s err=%v", chargeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if jobs == nil {
		jobs = []domain.ChargeJob{}
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

// HealthHandler handles GET /health.
func (h *ChargeHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DBHealthHandler handles GET /health/db.
func (h *ChargeHandlers) DBHealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.PingStore(r.Context()); err != nil {
		log.Printf("level=error component=api endpoint=health_db err=%v", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"ok": false, "db": "error"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "db": "ok"})
}

func (h *ChargeHandlers) parseChargeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	chargeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid charge id")
		return uuid.Nil, false
	}
	return chargeID, true
}

func (h *ChargeHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *ChargeHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
