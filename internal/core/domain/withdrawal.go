package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the state of a merchant payout request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true when no further transition is possible.
func (s WithdrawalStatus) IsTerminal() bool {
	return len(withdrawalTransitions[s]) == 0
}

// IsValid reports whether s is a known status.
func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusProcessing,
		WithdrawalStatusCompleted, WithdrawalStatusRejected, WithdrawalStatusCancelled:
		return true
	}
	return false
}

// WithdrawalRequest moves merchant funds to an external bank account.
// Amounts are frozen at creation. DebitTransactionID is set exactly once, at approval.
type WithdrawalRequest struct {
	ID                 uuid.UUID        `json:"id"`
	MerchantID         uuid.UUID        `json:"merchant_id"`
	WalletID           uuid.UUID        `json:"wallet_id"`
	RequestedAmount    decimal.Decimal  `json:"requested_amount"`
	CommissionAmount   decimal.Decimal  `json:"commission_amount"`
	NetAmount          decimal.Decimal  `json:"net_amount"`
	Status             WithdrawalStatus `json:"status"`
	BankAccountName    string           `json:"bank_account_name"`
	BankAccountIBAN    string           `json:"bank_account_iban"`
	BankAccountBIC     *string          `json:"bank_account_bic,omitempty"`
	RejectionReason    *string          `json:"rejection_reason,omitempty"`
	DebitTransactionID *uuid.UUID       `json:"debit_transaction_id,omitempty"`
	ProcessedBy        *uuid.UUID       `json:"processed_by,omitempty"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsDebited returns true once the wallet has been charged for this request.
func (w *WithdrawalRequest) IsDebited() bool {
	return w.DebitTransactionID != nil
}

// WithdrawalAmounts is the commission split of a requested amount.
type WithdrawalAmounts struct {
	Requested  decimal.Decimal `json:"requested_amount"`
	Commission decimal.Decimal `json:"commission_amount"`
	Net        decimal.Decimal `json:"net_amount"`
}

// CalculateWithdrawalAmounts rounds the commission half-up to cents and derives
// the net by subtraction, so Commission + Net == Requested exactly.
func CalculateWithdrawalAmounts(requested, rate decimal.Decimal) WithdrawalAmounts {
	commission := RoundMoney(requested.Mul(rate))
	return WithdrawalAmounts{
		Requested:  requested,
		Commission: commission,
		Net:        requested.Sub(commission),
	}
}
