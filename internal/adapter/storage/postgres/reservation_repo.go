package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// The merchant of a reservation is the owner of its lot.
const reservationSelect = `SELECT r.id, r.lot_id, r.user_id, l.merchant_id, r.quantity, r.total_price,
		r.status, r.pickup_pin, r.customer_confirmed, r.customer_confirmed_at,
		r.suspended_basket_id, r.created_at, r.updated_at
		FROM reservations r JOIN lots l ON l.id = r.lot_id`

// ReservationRepo implements ports.ReservationRepository.
type ReservationRepo struct {
	pool Pool
}

// NewReservationRepo creates a new ReservationRepo.
func NewReservationRepo(pool Pool) *ReservationRepo {
	return &ReservationRepo{pool: pool}
}

func (r *ReservationRepo) Create(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	query := `INSERT INTO reservations (id, lot_id, user_id, quantity, total_price, status, pickup_pin,
			customer_confirmed, customer_confirmed_at, suspended_basket_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		res.ID, res.LotID, res.UserID, res.Quantity, res.TotalPrice, res.Status, res.PickupPIN,
		res.CustomerConfirmed, res.CustomerConfirmedAt, res.SuspendedBasketID, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert reservation", err)
	}
	return nil
}

func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, err := scanReservation(r.pool.QueryRow(ctx, reservationSelect+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// GetByIDForUpdate locks the reservation row only, not its lot.
func (r *ReservationRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	res, err := scanReservation(tx.QueryRow(ctx, reservationSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		return nil, fmt.Errorf("get reservation for update: %w", err)
	}
	return res, nil
}

func (r *ReservationRepo) MarkCustomerConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE reservations
		SET customer_confirmed = TRUE, customer_confirmed_at = $1, updated_at = $1
		WHERE id = $2 AND NOT customer_confirmed`

	tag, err := tx.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark reservation confirmed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepo) CountBySuspendedBasket(ctx context.Context, basketID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE suspended_basket_id = $1`, basketID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count basket reservations: %w", err)
	}
	return n, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := row.Scan(
		&res.ID, &res.LotID, &res.UserID, &res.MerchantID, &res.Quantity, &res.TotalPrice,
		&res.Status, &res.PickupPIN, &res.CustomerConfirmed, &res.CustomerConfirmedAt,
		&res.SuspendedBasketID, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}
