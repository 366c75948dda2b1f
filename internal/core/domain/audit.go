package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRecharge             AuditAction = "RECHARGE"
	AuditActionPayment              AuditAction = "PAYMENT"
	AuditActionRefund               AuditAction = "REFUND"
	AuditActionConfirmReceipt       AuditAction = "CONFIRM_RECEIPT"
	AuditActionWithdrawalRequest    AuditAction = "WITHDRAWAL_REQUEST"
	AuditActionWithdrawalCancel     AuditAction = "WITHDRAWAL_CANCEL"
	AuditActionWithdrawalApprove    AuditAction = "WITHDRAWAL_APPROVE"
	AuditActionWithdrawalProcessing AuditAction = "WITHDRAWAL_PROCESSING"
	AuditActionWithdrawalComplete   AuditAction = "WITHDRAWAL_COMPLETE"
	AuditActionWithdrawalReject     AuditAction = "WITHDRAWAL_REJECT"
	AuditActionBankAccountAdd       AuditAction = "BANK_ACCOUNT_ADD"
	AuditActionBankAccountDefault   AuditAction = "BANK_ACCOUNT_DEFAULT"
	AuditActionBankAccountDelete    AuditAction = "BANK_ACCOUNT_DELETE"
	AuditActionBasketCreate         AuditAction = "BASKET_CREATE"
	AuditActionBasketReserve        AuditAction = "BASKET_RESERVE"
	AuditActionBasketClaim          AuditAction = "BASKET_CLAIM"
	AuditActionBasketExpire         AuditAction = "BASKET_EXPIRE"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
