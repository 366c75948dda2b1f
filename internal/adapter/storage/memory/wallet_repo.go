package memory

import (
	"context"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	s *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

// GetOrCreate inserts a zero-balance wallet outside any transaction.
func (r *WalletRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, _ := r.s.insertWalletLocked(userID)
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.walletByUser[userID]
	if !ok {
		return nil, nil
	}
	cp := *r.s.wallets[id]
	return &cp, nil
}

func (r *WalletRepo) GetOrCreateForUpdate(_ context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	var out domain.Wallet
	err := r.s.write(tx, func() func() {
		w, created := r.s.insertWalletLocked(userID)
		out = *w
		if !created {
			return nil
		}
		return func() {
			delete(r.s.wallets, w.ID)
			delete(r.s.walletByUser, userID)
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *WalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	return r.s.write(tx, func() func() {
		w, ok := r.s.wallets[walletID]
		if !ok {
			return nil
		}
		prev := *w
		w.Balance = balance
		w.UpdatedAt = time.Now().UTC()
		return func() { *w = prev }
	})
}

// insertWalletLocked mirrors INSERT ... ON CONFLICT (user_id) DO NOTHING. Caller holds mu.
func (s *Store) insertWalletLocked(userID uuid.UUID) (*domain.Wallet, bool) {
	if id, ok := s.walletByUser[userID]; ok {
		return s.wallets[id], false
	}
	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.walletByUser[userID] = w.ID
	return w, true
}
