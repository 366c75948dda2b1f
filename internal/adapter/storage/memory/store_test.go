package memory

import (
	"context"
	"testing"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.DBTransactor                = (*Store)(nil)
	_ ports.HealthChecker               = (*Store)(nil)
	_ ports.WalletRepository            = (*WalletRepo)(nil)
	_ ports.WalletTransactionRepository = (*TransactionRepo)(nil)
	_ ports.WithdrawalRepository        = (*WithdrawalRepo)(nil)
	_ ports.BankAccountRepository       = (*BankAccountRepo)(nil)
	_ ports.LotRepository               = (*LotRepo)(nil)
	_ ports.ReservationRepository       = (*ReservationRepo)(nil)
	_ ports.SuspendedBasketRepository   = (*BasketRepo)(nil)
	_ ports.NotificationRepository      = (*NotificationRepo)(nil)
	_ ports.IdempotencyRepository       = (*IdempotencyRepo)(nil)
	_ ports.AuditRepository             = (*AuditRepo)(nil)
)

func TestTx_RollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	txns := NewTransactionRepo(s)
	userID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	w, err := wallets.GetOrCreateForUpdate(ctx, tx, userID)
	require.NoError(t, err)
	require.NoError(t, wallets.UpdateBalance(ctx, tx, w.ID, decimal.NewFromInt(50)))
	require.NoError(t, txns.Create(ctx, tx, &domain.WalletTransaction{
		ID: uuid.New(), WalletID: w.ID, UserID: userID, Amount: decimal.NewFromInt(50),
		Status: domain.TransactionStatusCompleted,
	}))

	require.NoError(t, tx.Rollback(ctx))

	got, err := wallets.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got, "wallet created inside the rolled back tx must disappear")

	_, total, err := txns.List(ctx, ports.TransactionListParams{UserID: userID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestTx_CommitKeepsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	wallets := NewWalletRepo(s)
	userID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	w, err := wallets.GetOrCreateForUpdate(ctx, tx, userID)
	require.NoError(t, err)
	require.NoError(t, wallets.UpdateBalance(ctx, tx, w.ID, decimal.RequireFromString("12.34")))
	require.NoError(t, tx.Commit(ctx))

	// Rollback after commit is a no-op, as with pgx.
	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)

	got, err := wallets.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "12.34", got.Balance.StringFixed(2))
}

func TestBegin_SerializesTransactions(t *testing.T) {
	s := NewStore()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit(context.Background()))

	tx2, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(context.Background()))
}

func TestWrite_OutsideTransactionFails(t *testing.T) {
	s := NewStore()
	err := NewWalletRepo(s).UpdateBalance(context.Background(), nil, uuid.New(), decimal.Zero)
	assert.ErrorIs(t, err, errNoTx)
}

func TestLotRepo_AdjustReservedIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	lotID := uuid.New()
	s.SeedLot(domain.Lot{ID: lotID, QuantityTotal: 3, QuantitySold: 1, Status: domain.LotStatusAvailable})
	lots := NewLotRepo(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := lots.AdjustReserved(ctx, tx, lotID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lots.AdjustReserved(ctx, tx, lotID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no stock left")

	ok, err = lots.AdjustReserved(ctx, tx, lotID, -3)
	require.NoError(t, err)
	assert.False(t, ok, "reserved cannot go negative")

	lot, _ := lots.GetByID(ctx, lotID)
	assert.Equal(t, 0, lot.AvailableQuantity())
}

func TestBasketRepo_ClaimIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	baskets := NewBasketRepo(s)
	basketID := uuid.New()
	now := time.Now().UTC()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, baskets.Create(ctx, tx, &domain.SuspendedBasket{
		ID: basketID, Status: domain.SuspendedBasketStatusAvailable, CreatedAt: now,
	}))

	first, err := baskets.Claim(ctx, tx, basketID, uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	second, err := baskets.Claim(ctx, tx, basketID, uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.True(t, first)
	assert.False(t, second)

	b, _ := baskets.GetByID(ctx, basketID)
	assert.Equal(t, domain.SuspendedBasketStatusClaimed, b.Status)
}

func TestBankAccountRepo_SingleDefault(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	accounts := NewBankAccountRepo(s)
	merchantID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, accounts.Create(ctx, tx, &domain.MerchantBankAccount{ID: uuid.New(), MerchantID: merchantID, IsDefault: true}))
	err = accounts.Create(ctx, tx, &domain.MerchantBankAccount{ID: uuid.New(), MerchantID: merchantID, IsDefault: true})
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)

	n, err := accounts.CountByMerchant(ctx, tx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReservationRepo_OneReservationPerBasket(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	reservations := NewReservationRepo(s)
	basketID := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, reservations.Create(ctx, tx, &domain.Reservation{ID: uuid.New(), SuspendedBasketID: &basketID}))
	err = reservations.Create(ctx, tx, &domain.Reservation{ID: uuid.New(), SuspendedBasketID: &basketID})
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)

	// Plain reservations carry no basket and never collide.
	require.NoError(t, reservations.Create(ctx, tx, &domain.Reservation{ID: uuid.New()}))
	require.NoError(t, reservations.Create(ctx, tx, &domain.Reservation{ID: uuid.New()}))

	n, err := reservations.CountBySuspendedBasket(ctx, basketID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIdempotencyRepo_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	logs := NewIdempotencyRepo(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	require.NoError(t, logs.Create(ctx, tx, &domain.IdempotencyLog{Key: "k1", TransactionID: uuid.New()}))
	err = logs.Create(ctx, tx, &domain.IdempotencyLog{Key: "k1", TransactionID: uuid.New()})
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, paginate(items, 2, 2))
	assert.Equal(t, []int{5}, paginate(items, 3, 2))
	assert.Empty(t, paginate(items, 4, 2))
	assert.Equal(t, items, paginate(items, 0, 0))
}
