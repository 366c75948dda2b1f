package dto

import (
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RechargeRequest is the request body for a wallet recharge.
type RechargeRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"money"`
	Description string          `json:"description" binding:"max=255"`
}

// PayRequest is the request body for a wallet payment.
type PayRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"money"`
	Description   string          `json:"description" binding:"max=255"`
	ReferenceID   *string         `json:"reference_id,omitempty" binding:"omitempty,uuid"`
	ReferenceType *string         `json:"reference_type,omitempty" binding:"omitempty,oneof=reservation suspended_basket mission"`
}

// RefundRequest is the admin request body for crediting a refund.
type RefundRequest struct {
	UserID        string          `json:"user_id" binding:"required,uuid"`
	Amount        decimal.Decimal `json:"amount" binding:"money"`
	Description   string          `json:"description" binding:"required,max=255"`
	ReferenceID   *string         `json:"reference_id,omitempty" binding:"omitempty,uuid"`
	ReferenceType *string         `json:"reference_type,omitempty" binding:"omitempty,oneof=reservation suspended_basket mission"`
}

// CreateBasketRequest is the request body for donating a suspended basket.
// Quantity defaults to 1 when omitted.
type CreateBasketRequest struct {
	LotID         string  `json:"lot_id" binding:"required,uuid"`
	Quantity      *int    `json:"quantity,omitempty"`
	Notes         *string `json:"notes,omitempty" binding:"omitempty,max=500"`
	PayWithWallet bool    `json:"pay_with_wallet"`
}

// CreateWithdrawalRequest is the request body for a merchant payout.
// Either BankAccountID or the explicit bank fields must be provided.
type CreateWithdrawalRequest struct {
	Amount          decimal.Decimal `json:"amount" binding:"money"`
	BankAccountID   *string         `json:"bank_account_id,omitempty" binding:"omitempty,uuid"`
	BankAccountName string          `json:"bank_account_name" binding:"max=100"`
	BankAccountIBAN string          `json:"bank_account_iban" binding:"omitempty,iban"`
	BankAccountBIC  *string         `json:"bank_account_bic,omitempty" binding:"omitempty,max=11"`
}

// RejectWithdrawalRequest is the admin request body for a rejection.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// AddBankAccountRequest is the request body for saving a payout destination.
type AddBankAccountRequest struct {
	AccountName string  `json:"account_name" binding:"required,max=100"`
	IBAN        string  `json:"iban" binding:"required,iban"`
	BIC         *string `json:"bic,omitempty" binding:"omitempty,max=11"`
	IsDefault   bool    `json:"is_default"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// TransactionResponse is one ledger entry on the wire.
type TransactionResponse struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Amount        string         `json:"amount"`
	BalanceBefore string         `json:"balance_before"`
	BalanceAfter  string         `json:"balance_after"`
	Description   string         `json:"description"`
	ReferenceID   *string        `json:"reference_id,omitempty"`
	ReferenceType *string        `json:"reference_type,omitempty"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// ToTransactionResponse formats a ledger entry with two-decimal amounts.
func ToTransactionResponse(t *domain.WalletTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Amount:        domain.FormatMoney(t.Amount),
		BalanceBefore: domain.FormatMoney(t.BalanceBefore),
		BalanceAfter:  domain.FormatMoney(t.BalanceAfter),
		Description:   t.Description,
		Status:        string(t.Status),
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.ReferenceID != nil {
		s := t.ReferenceID.String()
		resp.ReferenceID = &s
	}
	if t.ReferenceType != nil {
		s := string(*t.ReferenceType)
		resp.ReferenceType = &s
	}
	return resp
}

// WithdrawalPreviewResponse shows the commission split of an amount.
type WithdrawalPreviewResponse struct {
	RequestedAmount  string `json:"requested_amount"`
	CommissionAmount string `json:"commission_amount"`
	NetAmount        string `json:"net_amount"`
	CommissionRate   string `json:"commission_rate"`
	MinimumAmount    string `json:"minimum_amount"`
}

// WalletResponse is the caller's wallet.
type WalletResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updated_at"`
}

// ToWalletResponse formats a wallet for the wire.
func ToWalletResponse(w *domain.Wallet, currency string) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID.String(),
		Balance:   domain.FormatMoney(w.Balance),
		Currency:  currency,
		UpdatedAt: w.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// WithdrawalResponse is one withdrawal request on the wire.
type WithdrawalResponse struct {
	ID                 string  `json:"id"`
	MerchantID         string  `json:"merchant_id"`
	RequestedAmount    string  `json:"requested_amount"`
	CommissionAmount   string  `json:"commission_amount"`
	NetAmount          string  `json:"net_amount"`
	Status             string  `json:"status"`
	BankAccountName    string  `json:"bank_account_name"`
	BankAccountIBAN    string  `json:"bank_account_iban"`
	BankAccountBIC     *string `json:"bank_account_bic,omitempty"`
	RejectionReason    *string `json:"rejection_reason,omitempty"`
	DebitTransactionID *string `json:"debit_transaction_id,omitempty"`
	ProcessedAt        *string `json:"processed_at,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

// ToWithdrawalResponse formats a withdrawal with two-decimal amounts.
func ToWithdrawalResponse(w *domain.WithdrawalRequest) WithdrawalResponse {
	resp := WithdrawalResponse{
		ID:               w.ID.String(),
		MerchantID:       w.MerchantID.String(),
		RequestedAmount:  domain.FormatMoney(w.RequestedAmount),
		CommissionAmount: domain.FormatMoney(w.CommissionAmount),
		NetAmount:        domain.FormatMoney(w.NetAmount),
		Status:           string(w.Status),
		BankAccountName:  w.BankAccountName,
		BankAccountIBAN:  w.BankAccountIBAN,
		BankAccountBIC:   w.BankAccountBIC,
		RejectionReason:  w.RejectionReason,
		CreatedAt:        w.CreatedAt.UTC().Format(time.RFC3339),
	}
	if w.DebitTransactionID != nil {
		s := w.DebitTransactionID.String()
		resp.DebitTransactionID = &s
	}
	if w.ProcessedAt != nil {
		s := w.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

// ToWithdrawalResponses formats a page of withdrawals.
func ToWithdrawalResponses(ws []domain.WithdrawalRequest) []WithdrawalResponse {
	out := make([]WithdrawalResponse, 0, len(ws))
	for i := range ws {
		out = append(out, ToWithdrawalResponse(&ws[i]))
	}
	return out
}
