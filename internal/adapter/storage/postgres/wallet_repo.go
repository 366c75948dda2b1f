package postgres

import (
	"context"
	"errors"
	"fmt"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const walletColumnList = `id, user_id, balance, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetOrCreate returns the user's wallet, inserting an empty one if none exists.
// Concurrent first calls race on the unique user_id; the loser's insert is a no-op.
func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	if err := r.insertIfMissing(ctx, r.pool, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumnList+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetByUserID fetches a wallet by owner (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx,
		`SELECT `+walletColumnList+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// GetOrCreateForUpdate returns the user's wallet row locked FOR UPDATE,
// creating it first when missing. This MUST be called within a transaction.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	if err := r.insertIfMissing(ctx, tx, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(tx.QueryRow(ctx,
		`SELECT `+walletColumnList+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalance sets a wallet's balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *WalletRepo) insertIfMissing(ctx context.Context, db execer, userID uuid.UUID) error {
	query := `INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := db.Exec(ctx, query, uuid.New(), userID); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
