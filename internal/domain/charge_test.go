package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestComputeRequestHash_DeterministicAcrossRetries(t *testing.T) {
	accountID := uuid.NewString()

	first := ComputeRequestHash(accountID, 2500, "USD")
	second := ComputeRequestHash(accountID, 2500, "USD")

	if first == "" {
		t.Fatal("expected a non-empty hash")
	}
	if first != second {
		t.Fatalf("expected identical hashes for identical payloads, got %q and %q", first, second)
	}
}

func TestComputeRequestHash_IgnoresSurroundingWhitespace(t *testing.T) {
	accountID := uuid.NewString()

	plain := ComputeRequestHash(accountID, 2500, "USD")
	padded := ComputeRequestHash("  "+accountID+" ", 2500, " USD ")

	if plain != padded {
		t.Fatal("expected whitespace around fields not to change the hash")
	}
}

func TestComputeRequestHash_DivergesPerField(t *testing.T) {
	accountID := uuid.NewString()
	base := ComputeRequestHash(accountID, 2500, "USD")

	tests := []struct {
		name string
		hash string
	}{
		{"different account", ComputeRequestHash(uuid.NewString(), 2500, "USD")},
		{"different amount", ComputeRequestHash(accountID, 2501, "USD")},
		{"different currency", ComputeRequestHash(accountID, 2500, "EUR")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.hash == base {
				t.Fatalf("expected hash to differ from base %q", base)
			}
		})
	}
}

func TestProcessChargePayload_EncodeDecode(t *testing.T) {
	chargeID := uuid.New()

	raw, err := EncodeProcessChargePayload(chargeID)
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}

	payload, err := DecodeProcessChargePayload(raw)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if payload.ChargeID != chargeID {
		t.Fatalf("expected charge id %s, got %s", chargeID, payload.ChargeID)
	}
}

func TestDecodeProcessChargePayload_RejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeProcessChargePayload([]byte(`{"charge_id":`)); err == nil {
		t.Fatal("expected an error for malformed payload")
	}
}
