package memory

import (
	"context"
	"slices"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	s *Store
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(s *Store) *WithdrawalRepo {
	return &WithdrawalRepo{s: s}
}

func (r *WithdrawalRepo) Create(_ context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	return r.s.write(tx, func() func() {
		cp := *w
		r.s.withdrawals[w.ID] = &cp
		return func() { delete(r.s.withdrawals, w.ID) }
	})
}

func (r *WithdrawalRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// GetByIDForUpdate reads inside tx; the open transaction already excludes other writers.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *WithdrawalRepo) Update(_ context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	return r.s.write(tx, func() func() {
		existing, ok := r.s.withdrawals[w.ID]
		if !ok {
			return nil
		}
		prev := *existing
		existing.Status = w.Status
		existing.RejectionReason = w.RejectionReason
		existing.DebitTransactionID = w.DebitTransactionID
		existing.ProcessedBy = w.ProcessedBy
		existing.ProcessedAt = w.ProcessedAt
		existing.UpdatedAt = w.UpdatedAt
		return func() { *existing = prev }
	})
}

func (r *WithdrawalRepo) List(_ context.Context, params ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.WithdrawalRequest
	for _, w := range r.s.withdrawals {
		if params.MerchantID != nil && w.MerchantID != *params.MerchantID {
			continue
		}
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b domain.WithdrawalRequest) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, params.Page, params.PageSize), int64(len(out)), nil
}

func (r *WithdrawalRepo) SumRequested(_ context.Context, merchantID uuid.UUID, statuses []domain.WithdrawalStatus) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, w := range r.s.withdrawals {
		if w.MerchantID == merchantID && slices.Contains(statuses, w.Status) {
			sum = sum.Add(w.RequestedAmount)
		}
	}
	return sum, nil
}
