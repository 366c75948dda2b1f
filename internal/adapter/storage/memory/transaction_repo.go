package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.WalletTransactionRepository.
type TransactionRepo struct {
	s *Store
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(s *Store) *TransactionRepo {
	return &TransactionRepo{s: s}
}

func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.WalletTransaction) error {
	var dup bool
	err := r.s.write(tx, func() func() {
		if _, exists := r.s.transactions[txn.ID]; exists {
			dup = true
			return nil
		}
		cp := *txn
		r.s.transactions[txn.ID] = &cp
		r.s.txOrder = append(r.s.txOrder, txn.ID)
		return func() {
			delete(r.s.transactions, txn.ID)
			if i := slices.Index(r.s.txOrder, txn.ID); i >= 0 {
				r.s.txOrder = slices.Delete(r.s.txOrder, i, i+1)
			}
		}
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("insert wallet transaction: duplicate id %s", txn.ID)
	}
	return nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *TransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.WalletTransaction, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.WalletTransaction
	// Newest first, insertion order breaks ties.
	for i := len(r.s.txOrder) - 1; i >= 0; i-- {
		t := r.s.transactions[r.s.txOrder[i]]
		if t.UserID != params.UserID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		out = append(out, *t)
	}
	slices.SortStableFunc(out, func(a, b domain.WalletTransaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return paginate(out, params.Page, params.PageSize), int64(len(out)), nil
}

func (r *TransactionRepo) SumCompleted(_ context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.s.transactions {
		if t.WalletID == walletID && t.IsCompleted() {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (r *TransactionRepo) GetStats(_ context.Context, userID uuid.UUID, since *time.Time) (*ports.WalletStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stats := &ports.WalletStats{
		TotalCredits:     decimal.Zero,
		TotalDebits:      decimal.Zero,
		MerchantPayments: decimal.Zero,
		Withdrawn:        decimal.Zero,
	}
	for _, t := range r.s.transactions {
		if t.UserID != userID || !t.IsCompleted() {
			continue
		}
		if since != nil && t.CreatedAt.Before(*since) {
			continue
		}
		stats.TransactionCount++
		if t.IsCredit() {
			stats.TotalCredits = stats.TotalCredits.Add(t.Amount)
		} else {
			stats.TotalDebits = stats.TotalDebits.Sub(t.Amount)
		}
		switch t.Type {
		case domain.TransactionTypeMerchantPayment:
			stats.MerchantPayments = stats.MerchantPayments.Add(t.Amount)
		case domain.TransactionTypeWithdrawal:
			stats.Withdrawn = stats.Withdrawn.Sub(t.Amount)
		}
	}
	return stats, nil
}
