package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fintech/charge-service/internal/app"
	"github.com/fintech/charge-service/internal/domain"
	"github.com/fintech/charge-service/internal/store"
	"github.com/google/uuid"
)

// chargeAPIRepoStub is an in-memory ledger backing end-to-end handler tests.
type chargeAPIRepoStub struct {
	store.Repository

	byID    map[uuid.UUID]*domain.Charge
	byKey   map[string]*domain.Charge
	events  map[uuid.UUID][]domain.ChargeEvent
	jobs    map[uuid.UUID][]domain.ChargeJob
	pingErr error
}

func newChargeAPIRepoStub() *chargeAPIRepoStub {
	return &chargeAPIRepoStub{
		byID:   make(map[uuid.UUID]*domain.Charge),
		byKey:  make(map[string]*domain.Charge),
		events: make(map[uuid.UUID][]domain.ChargeEvent),
		jobs:   make(map[uuid.UUID][]domain.ChargeJob),
	}
}

func (s *chargeAPIRepoStub) CreateChargeWithJob(ctx context.Context, charge *domain.Charge) error {
	if _, taken := s.byKey[charge.IdempotencyKey]; taken {
		return store.ErrDuplicateIdempotencyKey
	}
	stored := *charge
	stored.CreatedAt = time.Now()
	s.byID[stored.ID] = &stored
	s.byKey[stored.IdempotencyKey] = &stored
	s.events[stored.ID] = []domain.ChargeEvent{{
		ID:        uuid.New(),
		ChargeID:  stored.ID,
		Status:    stored.Status,
		CreatedAt: stored.CreatedAt,
	}}
	payload, _ := domain.EncodeProcessChargePayload(stored.ID)
	s.jobs[stored.ID] = []domain.ChargeJob{{
		ID:        uuid.New(),
		Type:      domain.JobTypeProcessCharge,
		Payload:   payload,
		Status:    domain.JobStatusPending,
		RunAt:     stored.CreatedAt,
		CreatedAt: stored.CreatedAt,
	}}
	return nil
}

func (s *chargeAPIRepoStub) FindChargeByID(ctx context.Context, chargeID uuid.UUID) (*domain.Charge, error) {
	charge, ok := s.byID[chargeID]
	if !ok {
		return nil, store.ErrChargeNotFound
	}
	return charge, nil
}

func (s *chargeAPIRepoStub) FindChargeByIdempotencyKey(ctx context.Context, key string) (*domain.Charge, error) {
	charge, ok := s.byKey[key]
	if !ok {
		return nil, store.ErrChargeNotFound
	}
	return charge, nil
}

func (s *chargeAPIRepoStub) ListCharges(ctx context.Context) ([]domain.Charge, error) {
	charges := make([]domain.Charge, 0, len(s.byID))
	for _, charge := range s.byID {
		charges = append(charges, *charge)
	}
	return charges, nil
}

func (s *chargeAPIRepoStub) ListChargeEvents(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeEvent, error) {
	return s.events[chargeID], nil
}

func (s *chargeAPIRepoStub) ListJobsForCharge(ctx context.Context, chargeID uuid.UUID) ([]domain.ChargeJob, error) {
	return s.jobs[chargeID], nil
}

func (s *chargeAPIRepoStub) Ping(ctx context.Context) error {
	return s.pingErr
}

func newTestServer(repo *chargeAPIRepoStub) *httptest.Server {
	service := app.NewService(repo, nil)
	handlers := NewChargeHandlers(service)
	return httptest.NewServer(ChargeRoutes(handlers))
}

func submitBody(accountID string, amount int64, key string) []byte {
	body, _ := json.Marshal(domain.SubmitChargeRequest{
		AccountID:      accountID,
		Amount:         amount,
		Currency:       "USD",
		IdempotencyKey: key,
	})
	return body
}

func postCharge(t *testing.T, server *httptest.Server, body []byte) (*http.Response, domain.Charge) {
	t.Helper()
	resp, err := http.Post(server.URL+"/charges", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /charges failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var charge domain.Charge
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
			t.Fatalf("decode charge response: %v", err)
		}
	}
	return resp, charge
}

func TestSubmitChargeHandler_CreatedThenReplayedThenConflict(t *testing.T) {
	server := newTestServer(newChargeAPIRepoStub())
	defer server.Close()

	accountID := uuid.NewString()
	key := "order-1234"

	resp, created := postCharge(t, server, submitBody(accountID, 2500, key))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for first submission, got %d", resp.StatusCode)
	}
	if created.Status != domain.ChargeStatusPending {
		t.Fatalf("expected PENDING charge, got %q", created.Status)
	}

	resp, replayed := postCharge(t, server, submitBody(accountID, 2500, key))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for identical retry, got %d", resp.StatusCode)
	}
	if replayed.ID != created.ID {
		t.Fatalf("expected retry to return canonical charge %s, got %s", created.ID, replayed.ID)
	}

	resp, _ = postCharge(t, server, submitBody(accountID, 9999, key))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for divergent payload, got %d", resp.StatusCode)
	}
	var conflict map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
		t.Fatalf("decode conflict response: %v", err)
	}
	if conflict["code"] != "idempotency_key_conflict" {
		t.Fatalf("expected conflict code, got %+v", conflict)
	}
}

func TestSubmitChargeHandler_RejectsInvalidSubmissions(t *testing.T) {
	server := newTestServer(newChargeAPIRepoStub())
	defer server.Close()

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{"account_id":`)},
		{"missing account id", submitBody("", 2500, "key-1")},
		{"non-positive amount", submitBody(uuid.NewString(), 0, "key-2")},
		{"missing idempotency key", submitBody(uuid.NewString(), 2500, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postCharge(t, server, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestGetChargeHandler_NotFoundAndBadID(t *testing.T) {
	server := newTestServer(newChargeAPIRepoStub())
	defer server.Close()

	resp, err := http.Get(fmt.Sprintf("%s/charges/%s", server.URL, uuid.NewString()))
	if err != nil {
		t.Fatalf("GET charge failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown charge, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/charges/not-a-uuid")
	if err != nil {
		t.Fatalf("GET charge failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.StatusCode)
	}
}

func TestChargeSubresourceHandlers_ReturnHistoryAndJobs(t *testing.T) {
	repo := newChargeAPIRepoStub()
	server := newTestServer(repo)
	defer server.Close()

	resp, created := postCharge(t, server, submitBody(uuid.NewString(), 2500, "order-9"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err := http.Get(fmt.Sprintf("%s/charges/%s/events", server.URL, created.ID))
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer resp.Body.Close()
	var events []domain.ChargeEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Status != domain.ChargeStatusPending {
		t.Fatalf("expected a single PENDING event, got %+v", events)
	}

	resp, err = http.Get(fmt.Sprintf("%s/charges/%s/jobs", server.URL, created.ID))
	if err != nil {
		t.Fatalf("GET jobs failed: %v", err)
	}
	defer resp.Body.Close()
	var jobs []domain.ChargeJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Type != domain.JobTypeProcessCharge {
		t.Fatalf("expected a single PROCESS_CHARGE job, got %+v", jobs)
	}
}

func TestListChargeEventsHandler_UnknownChargeYieldsEmptyList(t *testing.T) {
	server := newTestServer(newChargeAPIRepoStub())
	defer server.Close()

	resp, err := http.Get(fmt.Sprintf("%s/charges/%s/events", server.URL, uuid.NewString()))
	if err != nil {
		t.Fatalf("GET events failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var events []domain.ChargeEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected an empty JSON array, got %+v", events)
	}
}

func TestHealthHandlers(t *testing.T) {
	repo := newChargeAPIRepoStub()
	server := newTestServer(repo)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/health/db")
	if err != nil {
		t.Fatalf("GET /health/db failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while the store is reachable, got %d", resp.StatusCode)
	}

	repo.pingErr = errors.New("connection refused")
	resp, err = http.Get(server.URL + "/health/db")
	if err != nil {
		t.Fatalf("GET /health/db failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 while the store is down, got %d", resp.StatusCode)
	}
}
