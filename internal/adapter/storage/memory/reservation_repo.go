package memory

import (
	"context"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReservationRepo implements ports.ReservationRepository.
type ReservationRepo struct {
	s *Store
}

// NewReservationRepo creates a new ReservationRepo.
func NewReservationRepo(s *Store) *ReservationRepo {
	return &ReservationRepo{s: s}
}

func (r *ReservationRepo) Create(_ context.Context, tx pgx.Tx, res *domain.Reservation) error {
	var dup bool
	err := r.s.write(tx, func() func() {
		// Mirrors the unique index on suspended_basket_id.
		if res.SuspendedBasketID != nil && r.s.basketReservationLocked(*res.SuspendedBasketID) {
			dup = true
			return nil
		}
		cp := *res
		r.s.reservations[res.ID] = &cp
		return func() { delete(r.s.reservations, res.ID) }
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("insert reservation: %w: basket %s", ports.ErrDuplicateKey, *res.SuspendedBasketID)
	}
	return nil
}

// basketReservationLocked requires s.mu to be held.
func (s *Store) basketReservationLocked(basketID uuid.UUID) bool {
	for _, res := range s.reservations {
		if res.SuspendedBasketID != nil && *res.SuspendedBasketID == basketID {
			return true
		}
	}
	return false
}

func (r *ReservationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (r *ReservationRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r *ReservationRepo) MarkCustomerConfirmed(_ context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	var matched bool
	err := r.s.write(tx, func() func() {
		res, ok := r.s.reservations[id]
		if !ok || res.CustomerConfirmed {
			return nil
		}
		matched = true
		prev := *res
		res.CustomerConfirmed = true
		res.CustomerConfirmedAt = &at
		res.UpdatedAt = at
		return func() { *res = prev }
	})
	return matched, err
}

func (r *ReservationRepo) CountBySuspendedBasket(_ context.Context, basketID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, res := range r.s.reservations {
		if res.SuspendedBasketID != nil && *res.SuspendedBasketID == basketID {
			n++
		}
	}
	return n, nil
}
