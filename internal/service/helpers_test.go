package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"surplus-ledger/internal/adapter/storage/memory"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdempotencyTTL = 24 * time.Hour

var (
	testRate          = decimal.RequireFromString("0.08")
	testMinWithdrawal = decimal.NewFromInt(100)
)

func newTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertDecimal compares money by value, so 10 and 10.00 are equal.
func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

// mockTx implements pgx.Tx for mock-driven tests.
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

type sentNotification struct {
	UserID   uuid.UUID
	Title    string
	Message  string
	Severity domain.NotificationSeverity
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, title, message string, severity domain.NotificationSeverity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Message: message, Severity: severity})
}

func (n *recordingNotifier) For(userID uuid.UUID) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// testEnv wires every service to one in-memory store.
type testEnv struct {
	store       *memory.Store
	notifier    *recordingNotifier
	wallets     *WalletServiceImpl
	withdrawals *WithdrawalServiceImpl
	banks       *BankAccountServiceImpl
	baskets     *SuspendedBasketServiceImpl
	reporting   ports.ReportingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	log := newTestLogger()

	walletRepo := memory.NewWalletRepo(store)
	txRepo := memory.NewTransactionRepo(store)
	withdrawalRepo := memory.NewWithdrawalRepo(store)
	bankRepo := memory.NewBankAccountRepo(store)
	lotRepo := memory.NewLotRepo(store)
	reservationRepo := memory.NewReservationRepo(store)
	basketRepo := memory.NewBasketRepo(store)
	idempRepo := memory.NewIdempotencyRepo(store)

	return &testEnv{
		store:    store,
		notifier: notifier,
		wallets: NewWalletService(walletRepo, txRepo, reservationRepo, idempRepo,
			nil, nil, notifier, store, testIdempotencyTTL, log),
		withdrawals: NewWithdrawalService(walletRepo, txRepo, withdrawalRepo, bankRepo,
			notifier, store, testRate, testMinWithdrawal, log),
		banks: NewBankAccountService(bankRepo, store, log),
		baskets: NewSuspendedBasketService(walletRepo, txRepo, basketRepo, lotRepo,
			reservationRepo, notifier, store, log),
		reporting: NewReportingService(walletRepo, txRepo, withdrawalRepo),
	}
}

func (e *testEnv) recharge(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	_, err := e.wallets.Recharge(context.Background(), ports.RechargeRequest{UserID: userID, Amount: dec(amount)})
	require.NoError(t, err)
}

// creditMerchant pays a merchant through a confirmed reservation.
func (e *testEnv) creditMerchant(t *testing.T, merchantID uuid.UUID, amount string) {
	t.Helper()
	_, err := e.wallets.PayMerchantOnConfirmation(context.Background(), ports.MerchantPaymentRequest{
		ReservationID: uuid.New(),
		MerchantID:    merchantID,
		Amount:        dec(amount),
	})
	require.NoError(t, err)
}

func (e *testEnv) balance(userID uuid.UUID) decimal.Decimal {
	return e.wallets.GetBalance(context.Background(), userID)
}

// assertReconciled checks that the stored balance equals the ledger sum.
func (e *testEnv) assertReconciled(t *testing.T, userID uuid.UUID) {
	t.Helper()
	rec, err := e.wallets.ReconcileWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.Truef(t, rec.Consistent, "balance %s drifted from ledger sum %s", rec.Balance, rec.LedgerSum)
}

func (e *testEnv) seedLot(t *testing.T, merchantID uuid.UUID, total int, price string) domain.Lot {
	t.Helper()
	lot := domain.Lot{
		ID:              uuid.New(),
		MerchantID:      merchantID,
		Title:           "Panier boulangerie",
		QuantityTotal:   total,
		OriginalPrice:   dec(price).Mul(decimal.NewFromInt(3)),
		DiscountedPrice: dec(price),
		Status:          domain.LotStatusAvailable,
	}
	e.store.SeedLot(lot)
	return lot
}

func (e *testEnv) lot(t *testing.T, id uuid.UUID) *domain.Lot {
	t.Helper()
	lot, err := memory.NewLotRepo(e.store).GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, lot)
	return lot
}
