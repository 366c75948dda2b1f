package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateWithdrawalAmounts(t *testing.T) {
	rate := d("0.08")
	tests := []struct {
		requested  string
		commission string
		net        string
	}{
		{"200.00", "16.00", "184.00"},
		{"100.00", "8.00", "92.00"},
		{"0", "0.00", "0.00"},
		{"123.45", "9.88", "113.57"}, // 9.876 rounds up
		{"100.06", "8.00", "92.06"},  // 8.0048 rounds down
		{"100.0625", "8.01", "92.0525"},
		{"156.25", "12.50", "143.75"},
		{"0.0625", "0.01", "0.0525"}, // 0.005 rounds half up
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			got := CalculateWithdrawalAmounts(d(tt.requested), rate)
			assert.True(t, got.Commission.Equal(d(tt.commission)), "commission %s", got.Commission)
			assert.True(t, got.Net.Equal(d(tt.net)), "net %s", got.Net)
			assert.True(t, got.Commission.Add(got.Net).Equal(got.Requested))
		})
	}
}

func TestCalculateWithdrawalAmounts_NoRoundingLeak(t *testing.T) {
	rate := d("0.08")
	for cents := int64(0); cents <= 100000; cents += 37 {
		requested := decimal.New(cents, -2)
		got := CalculateWithdrawalAmounts(requested, rate)
		if !got.Commission.Add(got.Net).Equal(requested) {
			t.Fatalf("leak at %s: %s + %s", requested, got.Commission, got.Net)
		}
		if !HasMoneyPrecision(got.Commission) {
			t.Fatalf("commission %s has more than two decimals", got.Commission)
		}
	}
}

func TestWithdrawalStatus_Transitions(t *testing.T) {
	all := []WithdrawalStatus{
		WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusProcessing,
		WithdrawalStatusCompleted, WithdrawalStatusRejected, WithdrawalStatusCancelled,
	}
	legal := map[[2]WithdrawalStatus]bool{
		{WithdrawalStatusPending, WithdrawalStatusApproved}:     true,
		{WithdrawalStatusPending, WithdrawalStatusRejected}:     true,
		{WithdrawalStatusPending, WithdrawalStatusCancelled}:    true,
		{WithdrawalStatusApproved, WithdrawalStatusProcessing}:  true,
		{WithdrawalStatusProcessing, WithdrawalStatusCompleted}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]WithdrawalStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestWithdrawalStatus_IsTerminal(t *testing.T) {
	assert.False(t, WithdrawalStatusPending.IsTerminal())
	assert.False(t, WithdrawalStatusApproved.IsTerminal())
	assert.False(t, WithdrawalStatusProcessing.IsTerminal())
	assert.True(t, WithdrawalStatusCompleted.IsTerminal())
	assert.True(t, WithdrawalStatusRejected.IsTerminal())
	assert.True(t, WithdrawalStatusCancelled.IsTerminal())
	assert.False(t, WithdrawalStatus("paid").IsValid())
}

func TestNormalizeIBAN(t *testing.T) {
	assert.Equal(t, "FR7630006000011234567890189", NormalizeIBAN(" fr76 3000 6000 0112 3456 7890 189 "))
	assert.True(t, ValidIBANLength(NormalizeIBAN("FR76 3000 6000 0112 3456 7890 189")))
	assert.False(t, ValidIBANLength("FR7630006"))
	assert.False(t, ValidIBANLength("FR76300060000112345678901891234567890"))
}

func TestLot_AvailableQuantity(t *testing.T) {
	lot := &Lot{QuantityTotal: 10, QuantityReserved: 3, QuantitySold: 2, Status: LotStatusAvailable}
	assert.Equal(t, 5, lot.AvailableQuantity())
	assert.True(t, lot.CanReserve(5))
	assert.False(t, lot.CanReserve(6))
	assert.False(t, lot.CanReserve(0))

	lot.Status = LotStatusExpired
	assert.False(t, lot.CanReserve(1))
}

func TestSuspendedBasket_ClaimableBy(t *testing.T) {
	holder := uuid.New()
	other := uuid.New()

	tests := []struct {
		name   string
		basket SuspendedBasket
		who    uuid.UUID
		want   bool
	}{
		{"available", SuspendedBasket{Status: SuspendedBasketStatusAvailable}, other, true},
		{"reserved by holder", SuspendedBasket{Status: SuspendedBasketStatusReserved, ReservedBy: &holder}, holder, true},
		{"reserved by someone else", SuspendedBasket{Status: SuspendedBasketStatusReserved, ReservedBy: &holder}, other, false},
		{"claimed", SuspendedBasket{Status: SuspendedBasketStatusClaimed}, other, false},
		{"expired", SuspendedBasket{Status: SuspendedBasketStatusExpired}, other, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.basket.ClaimableBy(tt.who))
		})
	}
}

func TestWallet_CanDebit(t *testing.T) {
	w := &Wallet{Balance: d("10.00")}
	assert.True(t, w.CanDebit(d("10.00")))
	assert.False(t, w.CanDebit(d("10.01")))
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, "184.00", FormatMoney(d("184")))
	assert.True(t, HasMoneyPrecision(d("12.50")))
	assert.False(t, HasMoneyPrecision(d("12.505")))
	assert.True(t, RoundMoney(d("0.005")).Equal(d("0.01")))
}

func TestBuildIdempotencyKey(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := BuildIdempotencyKey(id, "recharge", "k-1")
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000:recharge:k-1", key)
}

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleMerchant.IsValid())
	assert.True(t, RoleAdmin.IsValid())
	assert.False(t, Role("authenticated").IsValid())
}

func TestTransactionType_IsValid(t *testing.T) {
	assert.True(t, TransactionTypeWithdrawal.IsValid())
	assert.False(t, TransactionType("TOPUP").IsValid())
}
