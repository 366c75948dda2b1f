package ports

import (
	"context"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TokenService handles JWT access tokens shared with the auth platform.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InFlightGuard keeps two retries of the same request from executing at once.
type InFlightGuard interface {
	// Acquire returns true if the caller now owns key, false if another request holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Notifier is the fire-and-forget notification collaborator.
// Implementations never surface failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, severity domain.NotificationSeverity)
}

// PushSender delivers a push message to a user's devices.
type PushSender interface {
	Send(ctx context.Context, userID uuid.UUID, title, message string, data map[string]string) error
}

// HealthChecker is one dependency reported by GET /health. A failing Ping marks
// the service degraded.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// NotificationService is the Notifier plus the user's inbox.
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// WalletService defines ledger primitives and money movement.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// GetBalance never fails: lookup errors degrade to zero.
	GetBalance(ctx context.Context, userID uuid.UUID) decimal.Decimal
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.WalletTransaction, int64, error)
	Recharge(ctx context.Context, req RechargeRequest) (*domain.WalletTransaction, error)
	PayFromWallet(ctx context.Context, req PaymentRequest) (*domain.WalletTransaction, error)
	RefundToWallet(ctx context.Context, req RefundRequest) (*domain.WalletTransaction, error)
	PayMerchantOnConfirmation(ctx context.Context, req MerchantPaymentRequest) (*domain.WalletTransaction, error)
	ConfirmReceiptAndPayMerchant(ctx context.Context, reservationID, customerID uuid.UUID) (*ReceiptConfirmation, error)
	ReconcileWallet(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

// RechargeRequest holds validated input for a wallet recharge.
type RechargeRequest struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// PaymentRequest holds validated input for a wallet payment.
type PaymentRequest struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Description    string
	ReferenceID    *uuid.UUID
	ReferenceType  *domain.ReferenceType
	IdempotencyKey string
}

// RefundRequest holds validated input for a wallet refund.
type RefundRequest struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Description   string
	ReferenceID   *uuid.UUID
	ReferenceType *domain.ReferenceType
}

// MerchantPaymentRequest credits a merchant for a confirmed reservation.
type MerchantPaymentRequest struct {
	ReservationID uuid.UUID
	MerchantID    uuid.UUID
	Amount        decimal.Decimal
	Description   string
}

// ReceiptConfirmation is the outcome of a confirmed pickup.
// MerchantTransaction is nil for free reservations.
type ReceiptConfirmation struct {
	Reservation         *domain.Reservation       `json:"reservation"`
	MerchantTransaction *domain.WalletTransaction `json:"merchant_transaction,omitempty"`
}

// Reconciliation compares a stored balance with its ledger.
type Reconciliation struct {
	WalletID   uuid.UUID       `json:"wallet_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Drift      decimal.Decimal `json:"drift"`
	Consistent bool            `json:"consistent"`
}

// WithdrawalService defines the merchant payout workflow.
type WithdrawalService interface {
	PreviewWithdrawal(amount decimal.Decimal) (*domain.WithdrawalAmounts, error)
	CreateWithdrawal(ctx context.Context, req WithdrawalCreateRequest) (*domain.WithdrawalRequest, error)
	CancelWithdrawal(ctx context.Context, withdrawalID, merchantID uuid.UUID) (*domain.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error)
	MarkWithdrawalProcessing(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error)
	CompleteWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID, reason string) (*domain.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, params WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error)
}

// WithdrawalCreateRequest holds input for a new withdrawal.
// Bank fields are copied from BankAccountID when set, otherwise taken as given.
type WithdrawalCreateRequest struct {
	MerchantID      uuid.UUID
	Amount          decimal.Decimal
	BankAccountID   *uuid.UUID
	BankAccountName string
	BankAccountIBAN string
	BankAccountBIC  *string
}

// BankAccountService manages merchant payout destinations.
type BankAccountService interface {
	AddBankAccount(ctx context.Context, req BankAccountCreateRequest) (*domain.MerchantBankAccount, error)
	ListBankAccounts(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBankAccount, error)
	SetDefaultBankAccount(ctx context.Context, merchantID, accountID uuid.UUID) (*domain.MerchantBankAccount, error)
	DeleteBankAccount(ctx context.Context, merchantID, accountID uuid.UUID) error
}

// BankAccountCreateRequest holds input for a new bank account.
type BankAccountCreateRequest struct {
	MerchantID  uuid.UUID
	AccountName string
	IBAN        string
	BIC         *string
	IsDefault   bool
}

// SuspendedBasketService defines donation, hold and claim of suspended baskets.
type SuspendedBasketService interface {
	CreateSuspendedBasket(ctx context.Context, req BasketCreateRequest) (*domain.SuspendedBasket, error)
	ReserveSuspendedBasket(ctx context.Context, basketID, beneficiaryID uuid.UUID) (*domain.SuspendedBasket, error)
	ClaimSuspendedBasket(ctx context.Context, basketID, beneficiaryID uuid.UUID) (*BasketClaim, error)
	ExpireSuspendedBasket(ctx context.Context, basketID uuid.UUID) (*domain.SuspendedBasket, error)
	GetSuspendedBasket(ctx context.Context, basketID uuid.UUID) (*domain.SuspendedBasket, error)
	ListSuspendedBaskets(ctx context.Context, params BasketListParams) ([]domain.SuspendedBasket, int64, error)
}

// BasketCreateRequest holds input for a basket donation.
type BasketCreateRequest struct {
	DonorID       uuid.UUID
	LotID         uuid.UUID
	Quantity      int
	Notes         *string
	PayWithWallet bool
}

// BasketClaim is the outcome of a successful claim.
type BasketClaim struct {
	Basket      *domain.SuspendedBasket `json:"basket"`
	Reservation *domain.Reservation     `json:"reservation"`
}

// ReportingService defines merchant dashboard queries.
type ReportingService interface {
	GetMerchantSummary(ctx context.Context, merchantID uuid.UUID, period string) (*MerchantWalletSummary, error)
}

// MerchantWalletSummary is the merchant wallet page header.
type MerchantWalletSummary struct {
	Balance            decimal.Decimal `json:"balance"`
	PendingWithdrawals decimal.Decimal `json:"pending_withdrawals"`
	Period             string          `json:"period"`
	TransactionCount   int64           `json:"transaction_count"`
	TotalEarned        decimal.Decimal `json:"total_earned"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"`
	TotalCredits       decimal.Decimal `json:"total_credits"`
	TotalDebits        decimal.Decimal `json:"total_debits"`
}
