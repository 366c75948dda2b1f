package postgres

import (
	"errors"
	"testing"

	"surplus-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		duplicate bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "uq_merchant_bank_accounts_default"}, true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"connection error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapWriteError("insert bank account", tt.err)
			assert.ErrorContains(t, err, "insert bank account")
			assert.Equal(t, tt.duplicate, errors.Is(err, ports.ErrDuplicateKey))
		})
	}
}
