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
)

// BankAccountRepo implements ports.BankAccountRepository.
type BankAccountRepo struct {
	s *Store
}

// NewBankAccountRepo creates a new BankAccountRepo.
func NewBankAccountRepo(s *Store) *BankAccountRepo {
	return &BankAccountRepo{s: s}
}

func (r *BankAccountRepo) Create(_ context.Context, tx pgx.Tx, acct *domain.MerchantBankAccount) error {
	var conflict bool
	err := r.s.write(tx, func() func() {
		// Mirrors the partial unique index on (merchant_id) WHERE is_default.
		if acct.IsDefault && r.s.defaultAccountLocked(acct.MerchantID) != nil {
			conflict = true
			return nil
		}
		cp := *acct
		r.s.bankAccounts[acct.ID] = &cp
		return func() { delete(r.s.bankAccounts, acct.ID) }
	})
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("insert bank account: %w: merchant %s already has a default account", ports.ErrDuplicateKey, acct.MerchantID)
	}
	return nil
}

func (r *BankAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.MerchantBankAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.bankAccounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// ListByMerchant returns the default account first, then newest first.
func (r *BankAccountRepo) ListByMerchant(_ context.Context, merchantID uuid.UUID) ([]domain.MerchantBankAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.s.accountsOfLocked(merchantID)
	slices.SortFunc(out, func(a, b domain.MerchantBankAccount) int {
		if a.IsDefault != b.IsDefault {
			if a.IsDefault {
				return -1
			}
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *BankAccountRepo) CountByMerchant(_ context.Context, _ pgx.Tx, merchantID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.accountsOfLocked(merchantID)), nil
}

func (r *BankAccountRepo) ClearDefault(_ context.Context, tx pgx.Tx, merchantID uuid.UUID) error {
	return r.s.write(tx, func() func() {
		var undo []func()
		for _, a := range r.s.bankAccounts {
			if a.MerchantID == merchantID && a.IsDefault {
				acct := a
				acct.IsDefault = false
				undo = append(undo, func() { acct.IsDefault = true })
			}
		}
		return func() {
			for _, u := range undo {
				u()
			}
		}
	})
}

func (r *BankAccountRepo) SetDefault(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.s.write(tx, func() func() {
		a, ok := r.s.bankAccounts[id]
		if !ok {
			return nil
		}
		prev := *a
		a.IsDefault = true
		a.UpdatedAt = time.Now().UTC()
		return func() { *a = prev }
	})
}

func (r *BankAccountRepo) PromoteLatest(_ context.Context, tx pgx.Tx, merchantID uuid.UUID) error {
	return r.s.write(tx, func() func() {
		var latest *domain.MerchantBankAccount
		for _, a := range r.s.bankAccounts {
			if a.MerchantID != merchantID {
				continue
			}
			if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
				latest = a
			}
		}
		if latest == nil {
			return nil
		}
		prev := *latest
		latest.IsDefault = true
		return func() { *latest = prev }
	})
}

func (r *BankAccountRepo) Delete(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.s.write(tx, func() func() {
		a, ok := r.s.bankAccounts[id]
		if !ok {
			return nil
		}
		delete(r.s.bankAccounts, id)
		return func() { r.s.bankAccounts[id] = a }
	})
}

func (s *Store) accountsOfLocked(merchantID uuid.UUID) []domain.MerchantBankAccount {
	var out []domain.MerchantBankAccount
	for _, a := range s.bankAccounts {
		if a.MerchantID == merchantID {
			out = append(out, *a)
		}
	}
	return out
}

func (s *Store) defaultAccountLocked(merchantID uuid.UUID) *domain.MerchantBankAccount {
	for _, a := range s.bankAccounts {
		if a.MerchantID == merchantID && a.IsDefault {
			return a
		}
	}
	return nil
}
