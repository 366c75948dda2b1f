package dto

import (
	"encoding/json"
	"testing"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/pkg/apperror"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(t *testing.T, body string, dst any) error {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(body), dst))
	return binding.Validator.ValidateStruct(dst)
}

func TestMoneyRule(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{"string amount", `{"amount":"20.00"}`, true},
		{"number amount", `{"amount":12.5}`, true},
		{"trailing zeros", `{"amount":"7.500"}`, true},
		{"missing", `{}`, false},
		{"zero", `{"amount":"0"}`, false},
		{"negative", `{"amount":"-5"}`, false},
		{"sub-cent", `{"amount":"1.005"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req RechargeRequest
			err := validate(t, tt.body, &req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			appErr := BindingError(err)
			assert.Equal(t, "VAL_002", appErr.Code)
		})
	}
}

func TestIBANRule(t *testing.T) {
	tests := []struct {
		name  string
		iban  string
		valid bool
	}{
		{"compact", "FR7630006000011234567890189", true},
		{"spaced lower case", "fr76 3000 6000 0112 3456 7890 189", true},
		{"too short", "FR76300060", false},
		{"too long", "FR76300060000112345678901891234567890", false},
		{"bad charset", "FR76-3000-6000-0112-3456-7890", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := AddBankAccountRequest{AccountName: "Compte pro", IBAN: tt.iban}
			err := binding.Validator.ValidateStruct(&req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, "VAL_005", BindingError(err).Code)
		})
	}
}

func TestBindingError_OtherFields(t *testing.T) {
	req := RefundRequest{UserID: "not-a-uuid", Amount: decimal.NewFromInt(5), Description: "geste commercial"}
	err := binding.Validator.ValidateStruct(&req)
	require.Error(t, err)

	appErr := BindingError(err)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, "Champ invalide : user_id", appErr.Message)

	assert.Equal(t, "VAL_001", BindingError(&json.SyntaxError{}).Code)
}

func TestPayRequest_ReferenceType(t *testing.T) {
	ref := uuid.NewString()
	bad := "mission_impossible"
	req := PayRequest{Amount: decimal.NewFromInt(3), ReferenceID: &ref, ReferenceType: &bad}
	assert.Error(t, binding.Validator.ValidateStruct(&req))

	good := string(domain.ReferenceTypeReservation)
	req.ReferenceType = &good
	assert.NoError(t, binding.Validator.ValidateStruct(&req))
}

func TestToTransactionResponse(t *testing.T) {
	refID := uuid.New()
	refType := domain.ReferenceTypeWithdrawalRequest
	txn := &domain.WalletTransaction{
		ID:            uuid.New(),
		Type:          domain.TransactionTypeWithdrawal,
		Amount:        decimal.NewFromInt(-200),
		BalanceBefore: decimal.RequireFromString("350.5"),
		BalanceAfter:  decimal.RequireFromString("150.5"),
		ReferenceID:   &refID,
		ReferenceType: &refType,
		Status:        domain.TransactionStatusCompleted,
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	resp := ToTransactionResponse(txn)
	assert.Equal(t, "-200.00", resp.Amount)
	assert.Equal(t, "350.50", resp.BalanceBefore)
	assert.Equal(t, "150.50", resp.BalanceAfter)
	assert.Equal(t, refID.String(), *resp.ReferenceID)
	assert.Equal(t, "withdrawal_request", *resp.ReferenceType)
	assert.Equal(t, "2026-03-01T10:00:00Z", resp.CreatedAt)
}

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := AddBankAccountRequest{AccountName: "  Boulangerie Martin  ", IBAN: " FR7630006000011234567890189 "}
	SanitizeStruct(&req)

	assert.Equal(t, "Boulangerie Martin", req.AccountName)
	assert.Equal(t, "FR7630006000011234567890189", req.IBAN)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	notes := "pour <script>alert('x')</script> une famille"
	req := CreateBasketRequest{LotID: uuid.NewString(), Notes: &notes}
	SanitizeStruct(&req)

	assert.Contains(t, *req.Notes, "&lt;script&gt;")
	assert.NotContains(t, *req.Notes, "<script>")
}

func TestSanitizeStruct_IgnoresNonPointer(t *testing.T) {
	req := RechargeRequest{Description: "  x  "}
	SanitizeStruct(req)
	assert.Equal(t, "  x  ", req.Description)
}
