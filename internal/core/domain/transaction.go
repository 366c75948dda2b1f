package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeRecharge        TransactionType = "recharge"
	TransactionTypePayment         TransactionType = "payment"
	TransactionTypeRefund          TransactionType = "refund"
	TransactionTypeMerchantPayment TransactionType = "merchant_payment"
	TransactionTypeWithdrawal      TransactionType = "withdrawal"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeRecharge, TransactionTypePayment, TransactionTypeRefund,
		TransactionTypeMerchantPayment, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// ReferenceType names the entity that caused a ledger entry.
type ReferenceType string

const (
	ReferenceTypeReservation       ReferenceType = "reservation"
	ReferenceTypeSuspendedBasket   ReferenceType = "suspended_basket"
	ReferenceTypeWithdrawalRequest ReferenceType = "withdrawal_request"
	ReferenceTypeMission           ReferenceType = "mission"
)

// WalletTransaction is an immutable, append-only ledger entry.
// BalanceAfter always equals BalanceBefore + Amount.
type WalletTransaction struct {
	ID            uuid.UUID         `json:"id"`
	WalletID      uuid.UUID         `json:"wallet_id"`
	UserID        uuid.UUID         `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"` // Signed: positive inflow, negative outflow
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Description   string            `json:"description"`
	ReferenceID   *uuid.UUID        `json:"reference_id,omitempty"`
	ReferenceType *ReferenceType    `json:"reference_type,omitempty"`
	Status        TransactionStatus `json:"status"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsCompleted returns true if the entry counts toward the wallet balance.
func (t *WalletTransaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// IsCredit returns true for inflows.
func (t *WalletTransaction) IsCredit() bool {
	return t.Amount.IsPositive()
}
