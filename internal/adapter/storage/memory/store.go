// Package memory is a transactional in-memory implementation of the repository
// ports. Transactions are serialized: Begin blocks until the previous transaction
// commits or rolls back, which gives the same outcome as row locks on a single
// Postgres node. Reads outside a transaction may observe uncommitted writes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errNoTx = errors.New("memory: write outside of a transaction")

// Store holds every table of the ledger.
type Store struct {
	sem chan struct{} // one open transaction at a time
	mu  sync.RWMutex  // guards the maps below

	wallets       map[uuid.UUID]*domain.Wallet
	walletByUser  map[uuid.UUID]uuid.UUID
	transactions  map[uuid.UUID]*domain.WalletTransaction
	txOrder       []uuid.UUID
	withdrawals   map[uuid.UUID]*domain.WithdrawalRequest
	bankAccounts  map[uuid.UUID]*domain.MerchantBankAccount
	lots          map[uuid.UUID]*domain.Lot
	reservations  map[uuid.UUID]*domain.Reservation
	baskets       map[uuid.UUID]*domain.SuspendedBasket
	notifications []domain.Notification
	idempotency   map[string]*domain.IdempotencyLog
	auditLogs     []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:          make(chan struct{}, 1),
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		walletByUser: make(map[uuid.UUID]uuid.UUID),
		transactions: make(map[uuid.UUID]*domain.WalletTransaction),
		withdrawals:  make(map[uuid.UUID]*domain.WithdrawalRequest),
		bankAccounts: make(map[uuid.UUID]*domain.MerchantBankAccount),
		lots:         make(map[uuid.UUID]*domain.Lot),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		baskets:      make(map[uuid.UUID]*domain.SuspendedBasket),
		idempotency:  make(map[string]*domain.IdempotencyLog),
	}
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.sem <- struct{}{}:
		return &Tx{store: s}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: begin: %w", ctx.Err())
	}
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// write applies a change inside tx and records how to revert it.
func (s *Store) write(tx pgx.Tx, apply func() func()) error {
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != s || mtx.closed {
		return errNoTx
	}
	s.mu.Lock()
	undo := apply()
	s.mu.Unlock()
	if undo != nil {
		mtx.undo = append(mtx.undo, undo)
	}
	return nil
}

// SeedLot inserts or replaces a lot. Lots are owned by the catalogue, not the ledger.
func (s *Store) SeedLot(lot domain.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = &lot
}

// SeedReservation inserts or replaces a reservation.
func (s *Store) SeedReservation(r domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = &r
}

// AuditLogs returns a copy of every persisted audit entry.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditLog(nil), s.auditLogs...)
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
