package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/internal/core/ports/mocks"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type walletTestDeps struct {
	svc        *WalletServiceImpl
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockWalletTransactionRepository
	idempRepo  *mocks.MockIdempotencyRepository
	idempCache *mocks.MockIdempotencyCache
	guard      *mocks.MockInFlightGuard
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupWalletService(t *testing.T) *walletTestDeps {
	ctrl := gomock.NewController(t)
	d := &walletTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockWalletTransactionRepository(ctrl),
		idempRepo:  mocks.NewMockIdempotencyRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		guard:      mocks.NewMockInFlightGuard(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewWalletService(
		d.walletRepo, d.txRepo, mocks.NewMockReservationRepository(ctrl), d.idempRepo,
		d.idempCache, d.guard, &recordingNotifier{}, d.transactor, testIdempotencyTTL, newTestLogger(),
	)
	return d
}

// ==================== Ledger primitives ====================

func TestWalletService_GetOrCreateWallet_ConcurrentCallsShareOneWallet(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	const callers = 20
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := env.wallets.GetOrCreateWallet(context.Background(), userID)
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assertDecimal(t, "0", env.balance(userID))
}

func TestWalletService_GetBalance_UnknownUserIsZero(t *testing.T) {
	env := newTestEnv(t)
	assertDecimal(t, "0", env.balance(uuid.New()))
}

func TestWalletService_GetBalance_DegradesToZeroOnError(t *testing.T) {
	d := setupWalletService(t)
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(gomock.Any(), userID).Return(nil, errors.New("connection reset"))

	assertDecimal(t, "0", d.svc.GetBalance(context.Background(), userID))
}

func TestWalletService_LedgerRowsCarryBalanceSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := env.wallets.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("50.00")})
	require.NoError(t, err)
	second, err := env.wallets.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec("12.50"), Description: "Panier"})
	require.NoError(t, err)

	assertDecimal(t, "0", first.BalanceBefore)
	assertDecimal(t, "50", first.BalanceAfter)
	assertDecimal(t, "50", second.BalanceBefore)
	assertDecimal(t, "37.50", second.BalanceAfter)
	assertDecimal(t, "-12.50", second.Amount)
	assert.Equal(t, domain.TransactionTypePayment, second.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, second.Status)
	assert.Equal(t, first.WalletID, second.WalletID)

	assertDecimal(t, "37.50", env.balance(userID))
	env.assertReconciled(t, userID)
}

// ==================== Recharge / Pay / Refund ====================

func TestWalletService_Recharge_Success(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	txn, err := env.wallets.Recharge(context.Background(), ports.RechargeRequest{UserID: userID, Amount: dec("25.00")})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeRecharge, txn.Type)
	assert.Equal(t, "Recharge du portefeuille", txn.Description)
	assertDecimal(t, "25", env.balance(userID))

	sent := env.notifier.For(userID)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.SeveritySuccess, sent[0].Severity)
	assert.Contains(t, sent[0].Message, "25.00 €")
}

func TestWalletService_RejectsInvalidAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	tests := []struct {
		name   string
		amount string
		code   string
	}{
		{"zero", "0", "VAL_002"},
		{"negative", "-5", "VAL_002"},
		{"sub-cent", "10.005", "VAL_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.wallets.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec(tt.amount)})
			assertAppError(t, err, tt.code)

			_, err = env.wallets.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec(tt.amount)})
			assertAppError(t, err, tt.code)

			_, err = env.wallets.RefundToWallet(ctx, ports.RefundRequest{UserID: userID, Amount: dec(tt.amount)})
			assertAppError(t, err, tt.code)
		})
	}

	_, total, err := env.wallets.ListTransactions(ctx, ports.TransactionListParams{UserID: userID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWalletService_PayFromWallet_InsufficientBalanceLeavesWalletUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	env.recharge(t, userID, "10.00")

	_, err := env.wallets.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec("30.00")})
	require.Error(t, err)
	assertAppError(t, err, "WAL_001")
	assert.True(t, apperror.IsKind(err, apperror.KindInsufficientBalance))

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Solde insuffisant. Disponible : 10.00, montant demandé : 30.00", appErr.Message)

	assertDecimal(t, "10", env.balance(userID))
	_, total, err := env.wallets.ListTransactions(ctx, ports.TransactionListParams{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "only the recharge is on the ledger")
}

func TestWalletService_PayFromWallet_ExactBalance(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.recharge(t, userID, "30.00")

	refID := uuid.New()
	txn, err := env.wallets.PayFromWallet(context.Background(), ports.PaymentRequest{
		UserID:        userID,
		Amount:        dec("30.00"),
		Description:   "Réservation",
		ReferenceID:   &refID,
		ReferenceType: refType(domain.ReferenceTypeReservation),
	})
	require.NoError(t, err)
	require.NotNil(t, txn.ReferenceID)
	assert.Equal(t, refID, *txn.ReferenceID)
	assertDecimal(t, "0", env.balance(userID))
}

func TestWalletService_RefundToWallet(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	txn, err := env.wallets.RefundToWallet(context.Background(), ports.RefundRequest{
		UserID:      userID,
		Amount:      dec("7.90"),
		Description: "Réservation annulée",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, txn.Type)
	assertDecimal(t, "7.90", env.balance(userID))
	env.assertReconciled(t, userID)
}

func TestWalletService_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.recharge(t, userID, "100.00")

	const payers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.wallets.PayFromWallet(context.Background(), ports.PaymentRequest{UserID: userID, Amount: dec("15.00")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperror.IsKind(err, apperror.KindInsufficientBalance) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.Equal(t, 4, rejected)
	assertDecimal(t, "10", env.balance(userID))
	env.assertReconciled(t, userID)
}

// ==================== Idempotency ====================

func TestWalletService_Recharge_IdempotencyKeyReplays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	req := ports.RechargeRequest{UserID: userID, Amount: dec("20.00"), IdempotencyKey: "rc-1"}

	first, err := env.wallets.Recharge(ctx, req)
	require.NoError(t, err)
	second, err := env.wallets.Recharge(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assertDecimal(t, "20", env.balance(userID))
	assert.Len(t, env.notifier.For(userID), 1, "a replay does not notify again")

	// The same client key on another operation is a different request.
	_, err = env.wallets.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec("5.00"), IdempotencyKey: "rc-1"})
	require.NoError(t, err)
	assertDecimal(t, "15", env.balance(userID))
}

func TestWalletService_PayFromWallet_RedisHitSkipsDatabase(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()

	cached := &domain.WalletTransaction{
		ID:     uuid.New(),
		UserID: userID,
		Type:   domain.TransactionTypePayment,
		Amount: dec("-12.00"),
		Status: domain.TransactionStatusCompleted,
	}
	cachedJSON, err := json.Marshal(cached)
	require.NoError(t, err)

	key := domain.BuildIdempotencyKey(userID, opPayment, "order-9")
	d.idempCache.EXPECT().Get(ctx, key).Return(cachedJSON, nil)

	result, err := d.svc.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec("12.00"), IdempotencyKey: "order-9"})
	require.NoError(t, err)
	assert.Equal(t, cached.ID, result.ID)
	assertDecimal(t, "-12", result.Amount)
}

func TestWalletService_Recharge_FullIdempotentFlow(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-42")

	gomock.InOrder(
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.guard.EXPECT().Acquire(ctx, key, inFlightTTL).Return(true, nil),
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil),
		d.walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, userID).Return(&domain.Wallet{
			ID: walletID, UserID: userID, Balance: dec("5.00"),
		}, nil),
		d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ any, txn *domain.WalletTransaction) error {
				assertDecimal(t, "5", txn.BalanceBefore)
				assertDecimal(t, "15", txn.BalanceAfter)
				return nil
			}),
		d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ any, _ uuid.UUID, balance decimal.Decimal) error {
				assertDecimal(t, "15", balance)
				return nil
			}),
		d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil),
		d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), testIdempotencyTTL).Return(nil),
		d.guard.EXPECT().Release(gomock.Any(), key).Return(nil),
	)

	txn, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-42"})
	require.NoError(t, err)
	assertDecimal(t, "10", txn.Amount)
}

func TestWalletService_Recharge_InFlightDuplicateRejected(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-busy")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	d.guard.EXPECT().Acquire(ctx, key, inFlightTTL).Return(false, nil)

	_, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-busy"})
	assertAppError(t, err, "CON_003")
}

func TestWalletService_Recharge_RedisDownFallsThrough(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-7")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, errors.New("redis down")).Times(2)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.guard.EXPECT().Acquire(ctx, key, inFlightTTL).Return(false, errors.New("redis down"))
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, userID).Return(&domain.Wallet{ID: uuid.New(), UserID: userID}, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any(), gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), testIdempotencyTTL).Return(errors.New("redis down"))

	_, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-7"})
	require.NoError(t, err)
}

func TestWalletService_Recharge_DatabaseRecordReplays(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-db")

	stored := &domain.WalletTransaction{ID: uuid.New(), UserID: userID, Amount: dec("10.00")}
	storedJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{
		Key: key, TransactionID: stored.ID, ResponseJSON: storedJSON, CreatedAt: time.Now(),
	}, nil)

	txn, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-db"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, txn.ID)
}

func TestWalletService_Recharge_ReplaysRecordCommittedWhileWaitingForGuard(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-late")

	stored := &domain.WalletTransaction{ID: uuid.New(), UserID: userID, Amount: dec("10.00")}
	storedJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	gomock.InOrder(
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.guard.EXPECT().Acquire(ctx, key, inFlightTTL).Return(true, nil),
		d.idempCache.EXPECT().Get(ctx, key).Return(storedJSON, nil),
		d.guard.EXPECT().Release(gomock.Any(), key).Return(nil),
	)

	txn, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-late"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, txn.ID)
}

func TestWalletService_Recharge_DuplicateRecordReplaysWinner(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}
	key := domain.BuildIdempotencyKey(userID, opRecharge, "rc-race")

	winner := &domain.WalletTransaction{ID: uuid.New(), UserID: userID, Amount: dec("10.00")}
	winnerJSON, err := json.Marshal(winner)
	require.NoError(t, err)

	gomock.InOrder(
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.guard.EXPECT().Acquire(ctx, key, inFlightTTL).Return(false, errors.New("redis down")),
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil),
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil),
		d.walletRepo.EXPECT().GetOrCreateForUpdate(ctx, tx, userID).Return(&domain.Wallet{ID: uuid.New(), UserID: userID}, nil),
		d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil),
		d.walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any(), gomock.Any()).Return(nil),
		d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(
			fmt.Errorf("insert idempotency log: %w", ports.ErrDuplicateKey)),
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{
			Key: key, TransactionID: winner.ID, ResponseJSON: winnerJSON, CreatedAt: time.Now(),
		}, nil),
	)

	txn, err := d.svc.Recharge(ctx, ports.RechargeRequest{UserID: userID, Amount: dec("10.00"), IdempotencyKey: "rc-race"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, txn.ID)
}

func TestWalletService_Recharge_ConcurrentSameKeyCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	const attempts = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uuid.UUID]int{}
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn, err := env.wallets.Recharge(context.Background(), ports.RechargeRequest{
				UserID: userID, Amount: dec("25.00"), IdempotencyKey: "topup-once",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[txn.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assertDecimal(t, "25", env.balance(userID))
	env.assertReconciled(t, userID)
}

// ==================== Merchant payment ====================

func seedPickedUpReservation(env *testEnv, customerID, merchantID uuid.UUID, price string) domain.Reservation {
	res := domain.Reservation{
		ID:         uuid.New(),
		LotID:      uuid.New(),
		UserID:     customerID,
		MerchantID: merchantID,
		Quantity:   1,
		TotalPrice: dec(price),
		Status:     domain.ReservationStatusCompleted,
		PickupPIN:  "123456",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	env.store.SeedReservation(res)
	return res
}

func TestWalletService_ConfirmReceiptAndPayMerchant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customerID, merchantID := uuid.New(), uuid.New()
	res := seedPickedUpReservation(env, customerID, merchantID, "12.00")

	out, err := env.wallets.ConfirmReceiptAndPayMerchant(ctx, res.ID, customerID)
	require.NoError(t, err)

	assert.True(t, out.Reservation.CustomerConfirmed)
	assert.NotNil(t, out.Reservation.CustomerConfirmedAt)
	require.NotNil(t, out.MerchantTransaction)
	assert.Equal(t, domain.TransactionTypeMerchantPayment, out.MerchantTransaction.Type)
	assert.Equal(t, domain.ReferenceTypeReservation, *out.MerchantTransaction.ReferenceType)
	assert.Equal(t, res.ID, *out.MerchantTransaction.ReferenceID)
	assertDecimal(t, "12", env.balance(merchantID))
	assertDecimal(t, "0", env.balance(customerID))

	require.Len(t, env.notifier.For(merchantID), 1)
	assert.Contains(t, env.notifier.For(merchantID)[0].Message, "12.00 €")
	require.Len(t, env.notifier.For(customerID), 1)

	_, err = env.wallets.ConfirmReceiptAndPayMerchant(ctx, res.ID, customerID)
	assertAppError(t, err, "STA_002")
	assertDecimal(t, "12", env.balance(merchantID))
	env.assertReconciled(t, merchantID)
}

func TestWalletService_ConfirmReceipt_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customerID, merchantID := uuid.New(), uuid.New()

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := env.wallets.ConfirmReceiptAndPayMerchant(ctx, uuid.New(), customerID)
		assertAppError(t, err, "NF_001")
	})

	t.Run("someone else's reservation", func(t *testing.T) {
		res := seedPickedUpReservation(env, customerID, merchantID, "9.00")
		_, err := env.wallets.ConfirmReceiptAndPayMerchant(ctx, res.ID, uuid.New())
		assertAppError(t, err, "AUTH_002")
	})

	t.Run("not picked up yet", func(t *testing.T) {
		res := seedPickedUpReservation(env, customerID, merchantID, "9.00")
		res.Status = domain.ReservationStatusConfirmed
		env.store.SeedReservation(res)

		_, err := env.wallets.ConfirmReceiptAndPayMerchant(ctx, res.ID, customerID)
		assertAppError(t, err, "STA_001")
	})

	assertDecimal(t, "0", env.balance(merchantID))
}

func TestWalletService_ConfirmReceipt_FreeReservationPaysNothing(t *testing.T) {
	env := newTestEnv(t)
	customerID, merchantID := uuid.New(), uuid.New()
	res := seedPickedUpReservation(env, customerID, merchantID, "0")

	out, err := env.wallets.ConfirmReceiptAndPayMerchant(context.Background(), res.ID, customerID)
	require.NoError(t, err)
	assert.True(t, out.Reservation.CustomerConfirmed)
	assert.Nil(t, out.MerchantTransaction)

	_, total, err := env.wallets.ListTransactions(context.Background(), ports.TransactionListParams{UserID: merchantID})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWalletService_ConfirmReceipt_ConcurrentConfirmationsPayOnce(t *testing.T) {
	env := newTestEnv(t)
	customerID, merchantID := uuid.New(), uuid.New()
	res := seedPickedUpReservation(env, customerID, merchantID, "15.50")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		already   int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.wallets.ConfirmReceiptAndPayMerchant(context.Background(), res.ID, customerID)
			mu.Lock()
			defer mu.Unlock()
			var appErr *apperror.AppError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &appErr) && appErr.Code == "STA_002":
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, already)
	assertDecimal(t, "15.50", env.balance(merchantID))
	env.assertReconciled(t, merchantID)
}

func TestWalletService_PayMerchantOnConfirmation(t *testing.T) {
	env := newTestEnv(t)
	merchantID := uuid.New()
	reservationID := uuid.New()

	txn, err := env.wallets.PayMerchantOnConfirmation(context.Background(), ports.MerchantPaymentRequest{
		ReservationID: reservationID,
		MerchantID:    merchantID,
		Amount:        dec("8.40"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Paiement client", txn.Description)
	assert.Equal(t, reservationID.String(), txn.Metadata["reservation_id"])
	assertDecimal(t, "8.40", env.balance(merchantID))
}

// ==================== Reconciliation / listing ====================

func TestWalletService_ReconcileWallet_ReportsDrift(t *testing.T) {
	d := setupWalletService(t)
	ctx := context.Background()
	userID := uuid.New()
	walletID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{ID: walletID, UserID: userID, Balance: dec("50.00")}, nil)
	d.txRepo.EXPECT().SumCompleted(ctx, walletID).Return(dec("40.00"), nil)

	rec, err := d.svc.ReconcileWallet(ctx, userID)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assertDecimal(t, "10", rec.Drift)
}

func TestWalletService_ReconcileWallet_UnknownWallet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.wallets.ReconcileWallet(context.Background(), uuid.New())
	assertAppError(t, err, "NF_001")
}

func TestWalletService_ListTransactions_FiltersAndPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		env.recharge(t, userID, "10.00")
	}
	_, err := env.wallets.PayFromWallet(ctx, ports.PaymentRequest{UserID: userID, Amount: dec("4.00")})
	require.NoError(t, err)

	recharge := domain.TransactionTypeRecharge
	items, total, err := env.wallets.ListTransactions(ctx, ports.TransactionListParams{UserID: userID, Type: &recharge, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, domain.TransactionTypeRecharge, it.Type)
	}
}
