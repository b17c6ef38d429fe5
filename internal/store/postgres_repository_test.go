package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique violation code",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "charges_idempotency_key_key"},
			want: true,
		},
		{
			name: "wrapped unique violation",
			err:  fmt.Errorf("insert charge: %w", &pgconn.PgError{Code: "23505"}),
			want: true,
		},
		{
			name: "other pg error code",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
		{
			name: "non-pg error",
			err:  errors.New("connection reset"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Fatalf("isUniqueViolation(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}
