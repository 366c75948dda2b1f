package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(userID uuid.UUID, balance string) *domain.Wallet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.RequireFromString(balance),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func walletColumns() []string {
	return []string{"id", "user_id", "balance", "created_at", "updated_at"}
}

func walletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletColumns()).AddRow(w.ID, w.UserID, w.Balance, w.CreatedAt, w.UpdatedAt)
}

func TestWalletRepo_GetOrCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), "0")

	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT \\(user_id\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), w.UserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	result, err := repo.GetOrCreate(context.Background(), w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.True(t, result.Balance.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetOrCreate_ExistingWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), "42.50")

	// The losing insert of a concurrent first call affects no row.
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(pgxmock.AnyArg(), w.UserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	result, err := repo.GetOrCreate(context.Background(), w.UserID)
	require.NoError(t, err)
	assert.Equal(t, "42.5", result.Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetOrCreate_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	result, err := repo.GetOrCreate(context.Background(), uuid.New())
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "insert wallet")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByUserID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(walletColumns()))

	result, err := repo.GetByUserID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetOrCreateForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet(uuid.New(), "100.00")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(pgxmock.AnyArg(), w.UserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id .+ FOR UPDATE").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetOrCreateForUpdate(context.Background(), dbTx, w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_UpdateBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	walletID := uuid.New()
	balance := decimal.RequireFromString("57.30")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET balance").
		WithArgs(balance, walletID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateBalance(context.Background(), dbTx, walletID, balance)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_UpdateBalance_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET balance").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateBalance(context.Background(), dbTx, uuid.New(), decimal.Zero)
	assert.ErrorContains(t, err, "wallet not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
