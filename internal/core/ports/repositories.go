package ports

import (
	"context"
	"errors"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrDuplicateKey is returned by Create methods when a unique key already holds
// a row. Postgres aborts the transaction in that case.
var ErrDuplicateKey = errors.New("duplicate key")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// GetOrCreate inserts a zero-balance wallet if none exists, then returns it.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// GetOrCreateForUpdate is GetOrCreate followed by SELECT ... FOR UPDATE in tx.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
}

// WalletTransactionRepository defines persistence operations for ledger entries.
type WalletTransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn *domain.WalletTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.WalletTransaction, int64, error)
	// SumCompleted returns the sum of signed amounts of completed entries.
	SumCompleted(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	GetStats(ctx context.Context, userID uuid.UUID, since *time.Time) (*WalletStats, error)
}

// TransactionListParams holds filter + pagination for listing ledger entries.
type TransactionListParams struct {
	UserID   uuid.UUID
	Type     *domain.TransactionType
	Status   *domain.TransactionStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// WalletStats aggregates completed entries of one wallet.
type WalletStats struct {
	TransactionCount int64
	TotalCredits     decimal.Decimal
	TotalDebits      decimal.Decimal // Positive magnitude
	MerchantPayments decimal.Decimal
	Withdrawn        decimal.Decimal // Positive magnitude
}

// WithdrawalRepository defines persistence operations for withdrawal requests.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error)
	// Update persists the mutable fields: status, rejection reason, debit entry and processing stamps.
	Update(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error
	List(ctx context.Context, params WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error)
	SumRequested(ctx context.Context, merchantID uuid.UUID, statuses []domain.WithdrawalStatus) (decimal.Decimal, error)
}

// WithdrawalListParams holds filter + pagination for listing withdrawals.
type WithdrawalListParams struct {
	MerchantID *uuid.UUID
	Status     *domain.WithdrawalStatus
	Page       int
	PageSize   int
}

// BankAccountRepository defines persistence operations for merchant bank accounts.
type BankAccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, acct *domain.MerchantBankAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MerchantBankAccount, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBankAccount, error)
	CountByMerchant(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (int, error)
	ClearDefault(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) error
	SetDefault(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	// PromoteLatest makes the most recently created account of the merchant the default.
	PromoteLatest(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// LotRepository exposes the stock counters of lots.
type LotRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lot, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Lot, error)
	// AdjustReserved adds delta to quantity_reserved when the result stays within stock.
	// Returns false when the conditional update matched no row.
	AdjustReserved(ctx context.Context, tx pgx.Tx, lotID uuid.UUID, delta int) (bool, error)
}

// ReservationRepository defines persistence operations for reservations.
type ReservationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, r *domain.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error)
	// MarkCustomerConfirmed flips customer_confirmed only if it is still false.
	MarkCustomerConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	CountBySuspendedBasket(ctx context.Context, basketID uuid.UUID) (int, error)
}

// SuspendedBasketRepository defines persistence operations for suspended baskets.
// Status changes are compare-and-swap updates that report whether they matched.
type SuspendedBasketRepository interface {
	Create(ctx context.Context, tx pgx.Tx, b *domain.SuspendedBasket) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SuspendedBasket, error)
	Reserve(ctx context.Context, tx pgx.Tx, id, beneficiaryID uuid.UUID, at time.Time) (bool, error)
	Claim(ctx context.Context, tx pgx.Tx, id, beneficiaryID, reservationID uuid.UUID, at time.Time) (bool, error)
	Expire(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) (bool, error)
	List(ctx context.Context, params BasketListParams) ([]domain.SuspendedBasket, int64, error)
}

// BasketListParams holds filter + pagination for listing baskets.
type BasketListParams struct {
	MerchantID *uuid.UUID
	Status     *domain.SuspendedBasketStatus
	Page       int
	PageSize   int
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
