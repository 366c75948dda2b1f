package postgres

import (
	"errors"
	"fmt"

	"surplus-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// mapWriteError wraps a unique violation in ports.ErrDuplicateKey so services can
// tell a lost race from a failure.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ports.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
