package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const basketColumnList = `id, donor_id, merchant_id, lot_id, reservation_id, quantity, amount, status, notes,
		reserved_by, reserved_at, claimed_by, claimed_at, payment_transaction_id, created_at, updated_at`

// BasketRepo implements ports.SuspendedBasketRepository. Every status change is a
// conditional UPDATE whose WHERE clause carries the expected current state.
type BasketRepo struct {
	pool Pool
}

// NewBasketRepo creates a new BasketRepo.
func NewBasketRepo(pool Pool) *BasketRepo {
	return &BasketRepo{pool: pool}
}

func (r *BasketRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.SuspendedBasket) error {
	query := `INSERT INTO suspended_baskets (` + basketColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		b.ID, b.DonorID, b.MerchantID, b.LotID, b.ReservationID, b.Quantity, b.Amount, b.Status, b.Notes,
		b.ReservedBy, b.ReservedAt, b.ClaimedBy, b.ClaimedAt, b.PaymentTransactionID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert suspended basket: %w", err)
	}
	return nil
}

func (r *BasketRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SuspendedBasket, error) {
	b, err := scanBasket(r.pool.QueryRow(ctx,
		`SELECT `+basketColumnList+` FROM suspended_baskets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get suspended basket: %w", err)
	}
	return b, nil
}

func (r *BasketRepo) Reserve(ctx context.Context, tx pgx.Tx, id, beneficiaryID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE suspended_baskets
		SET status = 'reserved', reserved_by = $1, reserved_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'available'`

	return r.swap(ctx, tx, "reserve", query, beneficiaryID, at, id)
}

// Claim succeeds for an available basket or one reserved by the same beneficiary.
func (r *BasketRepo) Claim(ctx context.Context, tx pgx.Tx, id, beneficiaryID, reservationID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE suspended_baskets
		SET status = 'claimed', claimed_by = $1, claimed_at = $2, reservation_id = $3, updated_at = $2
		WHERE id = $4 AND (status = 'available' OR (status = 'reserved' AND reserved_by = $1))`

	return r.swap(ctx, tx, "claim", query, beneficiaryID, at, reservationID, id)
}

func (r *BasketRepo) Expire(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE suspended_baskets
		SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status IN ('available', 'reserved')`

	return r.swap(ctx, tx, "expire", query, at, id)
}

// List fetches baskets with optional merchant and status filters, newest first.
func (r *BasketRepo) List(ctx context.Context, params ports.BasketListParams) ([]domain.SuspendedBasket, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.MerchantID != nil {
		conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
		args = append(args, *params.MerchantID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM suspended_baskets %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suspended baskets: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM suspended_baskets %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, basketColumnList, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suspended baskets: %w", err)
	}
	defer rows.Close()

	var out []domain.SuspendedBasket
	for rows.Next() {
		b, err := scanBasket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan suspended basket row: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate suspended basket rows: %w", err)
	}
	return out, total, nil
}

func (r *BasketRepo) swap(ctx context.Context, tx pgx.Tx, op, query string, args ...any) (bool, error) {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s suspended basket: %w", op, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanBasket(row pgx.Row) (*domain.SuspendedBasket, error) {
	b := &domain.SuspendedBasket{}
	err := row.Scan(
		&b.ID, &b.DonorID, &b.MerchantID, &b.LotID, &b.ReservationID, &b.Quantity, &b.Amount, &b.Status, &b.Notes,
		&b.ReservedBy, &b.ReservedAt, &b.ClaimedBy, &b.ClaimedAt, &b.PaymentTransactionID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}
