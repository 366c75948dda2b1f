package postgres

import (
	"context"
	"errors"
	"fmt"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const lotColumnList = `id, merchant_id, title, quantity_total, quantity_reserved, quantity_sold,
		original_price, discounted_price, status, created_at, updated_at`

// LotRepo implements ports.LotRepository. Lots are owned by the catalogue;
// the ledger only reads them and moves quantity_reserved.
type LotRepo struct {
	pool Pool
}

// NewLotRepo creates a new LotRepo.
func NewLotRepo(pool Pool) *LotRepo {
	return &LotRepo{pool: pool}
}

func (r *LotRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lot, error) {
	l, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumnList+` FROM lots WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

// GetByIDForUpdate locks the lot row. This MUST be called within a transaction.
func (r *LotRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Lot, error) {
	l, err := scanLot(tx.QueryRow(ctx, `SELECT `+lotColumnList+` FROM lots WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get lot for update: %w", err)
	}
	return l, nil
}

// AdjustReserved moves quantity_reserved by delta only while it stays within
// [0, quantity_total - quantity_sold].
func (r *LotRepo) AdjustReserved(ctx context.Context, tx pgx.Tx, lotID uuid.UUID, delta int) (bool, error) {
	query := `UPDATE lots
		SET quantity_reserved = quantity_reserved + $1, updated_at = NOW()
		WHERE id = $2
			AND quantity_reserved + $1 >= 0
			AND quantity_total - quantity_sold - (quantity_reserved + $1) >= 0`

	tag, err := tx.Exec(ctx, query, delta, lotID)
	if err != nil {
		return false, fmt.Errorf("adjust lot reserved quantity: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanLot(row pgx.Row) (*domain.Lot, error) {
	l := &domain.Lot{}
	err := row.Scan(
		&l.ID, &l.MerchantID, &l.Title, &l.QuantityTotal, &l.QuantityReserved, &l.QuantitySold,
		&l.OriginalPrice, &l.DiscountedPrice, &l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}
