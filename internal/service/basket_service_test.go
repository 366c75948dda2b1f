package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"surplus-ledger/internal/adapter/storage/memory"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/internal/core/ports/mocks"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var pinPattern = regexp.MustCompile(`^\d{6}$`)

func (e *testEnv) donate(t *testing.T, donorID, lotID uuid.UUID, quantity int, payWithWallet bool) *domain.SuspendedBasket {
	t.Helper()
	b, err := e.baskets.CreateSuspendedBasket(context.Background(), ports.BasketCreateRequest{
		DonorID:       donorID,
		LotID:         lotID,
		Quantity:      quantity,
		PayWithWallet: payWithWallet,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) reservationsForBasket(t *testing.T, basketID uuid.UUID) int {
	t.Helper()
	n, err := memory.NewReservationRepo(e.store).CountBySuspendedBasket(context.Background(), basketID)
	require.NoError(t, err)
	return n
}

func TestBasketService_CreateSuspendedBasket_HoldsStock(t *testing.T) {
	env := newTestEnv(t)
	merchantID, donorID := uuid.New(), uuid.New()
	lot := env.seedLot(t, merchantID, 5, "4.50")

	basket := env.donate(t, donorID, lot.ID, 2, false)

	assert.Equal(t, domain.SuspendedBasketStatusAvailable, basket.Status)
	assert.Equal(t, merchantID, basket.MerchantID)
	assertDecimal(t, "9.00", basket.Amount)
	assert.Nil(t, basket.PaymentTransactionID)

	stored := env.lot(t, lot.ID)
	assert.Equal(t, 2, stored.QuantityReserved)
	assert.Equal(t, 3, stored.AvailableQuantity())
	assert.Len(t, env.notifier.For(donorID), 1)
}

func TestBasketService_CreateSuspendedBasket_PaidFromWallet(t *testing.T) {
	env := newTestEnv(t)
	donorID := uuid.New()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	env.recharge(t, donorID, "20.00")

	basket := env.donate(t, donorID, lot.ID, 3, true)

	require.NotNil(t, basket.PaymentTransactionID)
	assertDecimal(t, "13.50", basket.Amount)
	assertDecimal(t, "6.50", env.balance(donorID))

	payment, err := env.wallets.txRepo.GetByID(context.Background(), *basket.PaymentTransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReferenceTypeSuspendedBasket, *payment.ReferenceType)
	assert.Equal(t, basket.ID, *payment.ReferenceID)
	env.assertReconciled(t, donorID)
}

func TestBasketService_CreateSuspendedBasket_InsufficientFundsRollsBackHold(t *testing.T) {
	env := newTestEnv(t)
	donorID := uuid.New()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	env.recharge(t, donorID, "5.00")

	_, err := env.baskets.CreateSuspendedBasket(context.Background(), ports.BasketCreateRequest{
		DonorID: donorID, LotID: lot.ID, Quantity: 2, PayWithWallet: true,
	})
	assertAppError(t, err, "WAL_001")

	assert.Equal(t, 0, env.lot(t, lot.ID).QuantityReserved)
	assertDecimal(t, "5", env.balance(donorID))
	_, total, err := env.baskets.ListSuspendedBaskets(context.Background(), ports.BasketListParams{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestBasketService_CreateSuspendedBasket_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	donorID := uuid.New()
	lot := env.seedLot(t, uuid.New(), 2, "4.50")
	expired := env.seedLot(t, uuid.New(), 2, "4.50")
	expired.Status = domain.LotStatusExpired
	env.store.SeedLot(expired)

	tests := []struct {
		name string
		req  ports.BasketCreateRequest
		code string
	}{
		{"zero quantity", ports.BasketCreateRequest{DonorID: donorID, LotID: lot.ID, Quantity: 0}, "VAL_001"},
		{"unknown lot", ports.BasketCreateRequest{DonorID: donorID, LotID: uuid.New(), Quantity: 1}, "NF_001"},
		{"expired lot", ports.BasketCreateRequest{DonorID: donorID, LotID: expired.ID, Quantity: 1}, "STA_001"},
		{"not enough stock", ports.BasketCreateRequest{DonorID: donorID, LotID: lot.ID, Quantity: 3}, "STA_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.baskets.CreateSuspendedBasket(ctx, tt.req)
			assertAppError(t, err, tt.code)
		})
	}
	assert.Equal(t, 0, env.lot(t, lot.ID).QuantityReserved)
}

func TestBasketService_ClaimCreatesFreeReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	merchantID, donorID, beneficiaryID := uuid.New(), uuid.New(), uuid.New()
	lot := env.seedLot(t, merchantID, 5, "4.50")
	basket := env.donate(t, donorID, lot.ID, 1, false)

	claim, err := env.baskets.ClaimSuspendedBasket(ctx, basket.ID, beneficiaryID)
	require.NoError(t, err)

	res := claim.Reservation
	assert.True(t, res.IsFree())
	assertDecimal(t, "0", res.TotalPrice)
	assert.Equal(t, domain.ReservationStatusConfirmed, res.Status)
	assert.Equal(t, beneficiaryID, res.UserID)
	assert.Equal(t, merchantID, res.MerchantID)
	require.NotNil(t, res.SuspendedBasketID)
	assert.Equal(t, basket.ID, *res.SuspendedBasketID)
	assert.Regexp(t, pinPattern, res.PickupPIN)

	stored, err := env.baskets.GetSuspendedBasket(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SuspendedBasketStatusClaimed, stored.Status)
	require.NotNil(t, stored.ClaimedBy)
	assert.Equal(t, beneficiaryID, *stored.ClaimedBy)
	require.NotNil(t, stored.ReservationID)
	assert.Equal(t, res.ID, *stored.ReservationID)

	assert.Contains(t, env.notifier.For(beneficiaryID)[0].Message, res.PickupPIN)
	assert.Len(t, env.notifier.For(donorID), 2)

	_, err = env.baskets.ClaimSuspendedBasket(ctx, basket.ID, uuid.New())
	assertAppError(t, err, "CON_002")
	assert.Equal(t, 1, env.reservationsForBasket(t, basket.ID))
}

func TestBasketService_ConcurrentClaimsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	basket := env.donate(t, uuid.New(), lot.ID, 1, false)

	const claimants = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		losers  int
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			beneficiaryID := uuid.New()
			_, err := env.baskets.ClaimSuspendedBasket(context.Background(), basket.ID, beneficiaryID)
			mu.Lock()
			defer mu.Unlock()
			var appErr *apperror.AppError
			switch {
			case err == nil:
				winners = append(winners, beneficiaryID)
			case errors.As(err, &appErr) && appErr.Code == "CON_002":
				losers++
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, claimants-1, losers)
	assert.Equal(t, 1, env.reservationsForBasket(t, basket.ID))

	stored, err := env.baskets.GetSuspendedBasket(context.Background(), basket.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *stored.ClaimedBy)
}

func TestBasketService_ClaimLosingReservationInsertIsAlreadyClaimed(t *testing.T) {
	ctrl := gomock.NewController(t)
	basketRepo := mocks.NewMockSuspendedBasketRepository(ctrl)
	lotRepo := mocks.NewMockLotRepository(ctrl)
	reservationRepo := mocks.NewMockReservationRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewSuspendedBasketService(mocks.NewMockWalletRepository(ctrl), mocks.NewMockWalletTransactionRepository(ctrl),
		basketRepo, lotRepo, reservationRepo, &recordingNotifier{}, transactor, newTestLogger())
	ctx := context.Background()
	tx := &mockTx{}

	lot := &domain.Lot{ID: uuid.New(), MerchantID: uuid.New(), QuantityTotal: 5, QuantityReserved: 1, Status: domain.LotStatusAvailable}
	basket := &domain.SuspendedBasket{
		ID: uuid.New(), LotID: lot.ID, MerchantID: lot.MerchantID, DonorID: uuid.New(),
		Quantity: 1, Status: domain.SuspendedBasketStatusAvailable,
	}

	// Both claimants saw the basket available; the other one inserted its reservation first.
	basketRepo.EXPECT().GetByID(ctx, basket.ID).Return(basket, nil)
	transactor.EXPECT().Begin(ctx).Return(tx, nil)
	lotRepo.EXPECT().GetByIDForUpdate(ctx, tx, lot.ID).Return(lot, nil)
	reservationRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(
		fmt.Errorf("insert reservation: %w", ports.ErrDuplicateKey))

	_, err := svc.ClaimSuspendedBasket(ctx, basket.ID, uuid.New())
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindConflict, appErr.Kind)
	assert.Equal(t, "CON_002", appErr.Code)
}

func TestBasketService_ReserveThenClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	holder, stranger := uuid.New(), uuid.New()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	basket := env.donate(t, uuid.New(), lot.ID, 1, false)

	reserved, err := env.baskets.ReserveSuspendedBasket(ctx, basket.ID, holder)
	require.NoError(t, err)
	assert.Equal(t, domain.SuspendedBasketStatusReserved, reserved.Status)
	assert.Equal(t, holder, *reserved.ReservedBy)
	assert.NotNil(t, reserved.ReservedAt)

	_, err = env.baskets.ReserveSuspendedBasket(ctx, basket.ID, stranger)
	assertAppError(t, err, "STA_003")

	_, err = env.baskets.ClaimSuspendedBasket(ctx, basket.ID, stranger)
	assertAppError(t, err, "STA_003")
	assert.Equal(t, 0, env.reservationsForBasket(t, basket.ID))

	claim, err := env.baskets.ClaimSuspendedBasket(ctx, basket.ID, holder)
	require.NoError(t, err)
	assert.Equal(t, holder, claim.Reservation.UserID)
}

func TestBasketService_ExpireReleasesStockAndRefundsDonor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	donorID := uuid.New()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	env.recharge(t, donorID, "10.00")
	basket := env.donate(t, donorID, lot.ID, 2, true)
	assertDecimal(t, "1", env.balance(donorID))

	expired, err := env.baskets.ExpireSuspendedBasket(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SuspendedBasketStatusExpired, expired.Status)

	assert.Equal(t, 0, env.lot(t, lot.ID).QuantityReserved)
	assertDecimal(t, "10", env.balance(donorID))
	env.assertReconciled(t, donorID)

	sent := env.notifier.For(donorID)
	assert.Contains(t, sent[len(sent)-1].Message, "9.00 €")

	_, err = env.baskets.ExpireSuspendedBasket(ctx, basket.ID)
	assertAppError(t, err, "STA_001")
	_, err = env.baskets.ClaimSuspendedBasket(ctx, basket.ID, uuid.New())
	assertAppError(t, err, "STA_003")
}

func TestBasketService_ExpireClaimedBasketIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	basket := env.donate(t, uuid.New(), lot.ID, 1, false)
	_, err := env.baskets.ClaimSuspendedBasket(ctx, basket.ID, uuid.New())
	require.NoError(t, err)

	_, err = env.baskets.ExpireSuspendedBasket(ctx, basket.ID)
	assertAppError(t, err, "STA_001")
	assert.Equal(t, 1, env.lot(t, lot.ID).QuantityReserved)
}

func TestBasketService_ClaimOnExpiredLotFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, uuid.New(), 5, "4.50")
	basket := env.donate(t, uuid.New(), lot.ID, 1, false)

	stale := *env.lot(t, lot.ID)
	stale.Status = domain.LotStatusExpired
	env.store.SeedLot(stale)

	_, err := env.baskets.ClaimSuspendedBasket(ctx, basket.ID, uuid.New())
	assertAppError(t, err, "STA_001")

	stored, err := env.baskets.GetSuspendedBasket(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SuspendedBasketStatusAvailable, stored.Status)
	assert.Equal(t, 0, env.reservationsForBasket(t, basket.ID))
}

func TestBasketService_ListSuspendedBaskets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m1, m2 := uuid.New(), uuid.New()
	lot1 := env.seedLot(t, m1, 10, "3.00")
	lot2 := env.seedLot(t, m2, 10, "3.00")
	env.donate(t, uuid.New(), lot1.ID, 1, false)
	claimed := env.donate(t, uuid.New(), lot1.ID, 1, false)
	env.donate(t, uuid.New(), lot2.ID, 1, false)
	_, err := env.baskets.ClaimSuspendedBasket(ctx, claimed.ID, uuid.New())
	require.NoError(t, err)

	available := domain.SuspendedBasketStatusAvailable
	items, total, err := env.baskets.ListSuspendedBaskets(ctx, ports.BasketListParams{MerchantID: &m1, Status: &available})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, m1, items[0].MerchantID)

	_, total, err = env.baskets.ListSuspendedBaskets(ctx, ports.BasketListParams{Status: &available})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = env.baskets.GetSuspendedBasket(ctx, uuid.New())
	assertAppError(t, err, "NF_001")
}

func TestGeneratePickupPIN(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pin, err := generatePickupPIN()
		require.NoError(t, err)
		assert.Regexp(t, pinPattern, pin)
		seen[pin] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
