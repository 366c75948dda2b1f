package memory

import (
	"context"
	"slices"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BasketRepo implements ports.SuspendedBasketRepository.
type BasketRepo struct {
	s *Store
}

// NewBasketRepo creates a new BasketRepo.
func NewBasketRepo(s *Store) *BasketRepo {
	return &BasketRepo{s: s}
}

func (r *BasketRepo) Create(_ context.Context, tx pgx.Tx, b *domain.SuspendedBasket) error {
	return r.s.write(tx, func() func() {
		cp := *b
		r.s.baskets[b.ID] = &cp
		return func() { delete(r.s.baskets, b.ID) }
	})
}

func (r *BasketRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SuspendedBasket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.baskets[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *BasketRepo) Reserve(_ context.Context, tx pgx.Tx, id, beneficiaryID uuid.UUID, at time.Time) (bool, error) {
	return r.swap(tx, id, func(b *domain.SuspendedBasket) bool {
		if b.Status != domain.SuspendedBasketStatusAvailable {
			return false
		}
		b.Status = domain.SuspendedBasketStatusReserved
		b.ReservedBy = &beneficiaryID
		b.ReservedAt = &at
		b.UpdatedAt = at
		return true
	})
}

func (r *BasketRepo) Claim(_ context.Context, tx pgx.Tx, id, beneficiaryID, reservationID uuid.UUID, at time.Time) (bool, error) {
	return r.swap(tx, id, func(b *domain.SuspendedBasket) bool {
		if !b.ClaimableBy(beneficiaryID) {
			return false
		}
		b.Status = domain.SuspendedBasketStatusClaimed
		b.ClaimedBy = &beneficiaryID
		b.ClaimedAt = &at
		b.ReservationID = &reservationID
		b.UpdatedAt = at
		return true
	})
}

func (r *BasketRepo) Expire(_ context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	return r.swap(tx, id, func(b *domain.SuspendedBasket) bool {
		if !b.IsOpen() {
			return false
		}
		b.Status = domain.SuspendedBasketStatusExpired
		b.UpdatedAt = at
		return true
	})
}

func (r *BasketRepo) List(_ context.Context, params ports.BasketListParams) ([]domain.SuspendedBasket, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.SuspendedBasket
	for _, b := range r.s.baskets {
		if params.MerchantID != nil && b.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && b.Status != *params.Status {
			continue
		}
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b domain.SuspendedBasket) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, params.Page, params.PageSize), int64(len(out)), nil
}

// swap is the compare-and-swap used by every status change.
func (r *BasketRepo) swap(tx pgx.Tx, id uuid.UUID, mutate func(b *domain.SuspendedBasket) bool) (bool, error) {
	var matched bool
	err := r.s.write(tx, func() func() {
		b, ok := r.s.baskets[id]
		if !ok {
			return nil
		}
		prev := *b
		if !mutate(b) {
			*b = prev
			return nil
		}
		matched = true
		return func() { *b = prev }
	})
	return matched, err
}
