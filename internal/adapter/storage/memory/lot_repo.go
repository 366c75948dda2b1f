package memory

import (
	"context"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LotRepo implements ports.LotRepository.
type LotRepo struct {
	s *Store
}

// NewLotRepo creates a new LotRepo.
func NewLotRepo(s *Store) *LotRepo {
	return &LotRepo{s: s}
}

func (r *LotRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Lot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.lots[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *LotRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Lot, error) {
	return r.GetByID(ctx, id)
}

func (r *LotRepo) AdjustReserved(_ context.Context, tx pgx.Tx, lotID uuid.UUID, delta int) (bool, error) {
	var matched bool
	err := r.s.write(tx, func() func() {
		l, ok := r.s.lots[lotID]
		if !ok {
			return nil
		}
		next := l.QuantityReserved + delta
		if next < 0 || l.QuantityTotal-next-l.QuantitySold < 0 {
			return nil
		}
		matched = true
		prev := *l
		l.QuantityReserved = next
		l.UpdatedAt = time.Now().UTC()
		return func() { *l = prev }
	})
	return matched, err
}
