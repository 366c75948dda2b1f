package service

import (
	"context"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ledgerEntry describes one signed movement on a user's wallet.
type ledgerEntry struct {
	UserID        uuid.UUID
	Type          domain.TransactionType
	Amount        decimal.Decimal // Signed
	Description   string
	Status        domain.TransactionStatus
	ReferenceID   *uuid.UUID
	ReferenceType *domain.ReferenceType
	Metadata      map[string]any
	// RequireFunds rejects a debit larger than the locked balance.
	RequireFunds bool
}

// ledger is the append primitive shared by every money operation.
type ledger struct {
	walletRepo ports.WalletRepository
	txRepo     ports.WalletTransactionRepository
}

// appendTransaction locks the wallet row, derives balance_before/balance_after from
// it, inserts the entry and moves the balance, all inside tx. Only completed
// entries move the balance.
func (l *ledger) appendTransaction(ctx context.Context, tx pgx.Tx, e ledgerEntry) (*domain.WalletTransaction, error) {
	wallet, err := l.walletRepo.GetOrCreateForUpdate(ctx, tx, e.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Portefeuille")
	}

	if e.RequireFunds && e.Amount.IsNegative() && !wallet.CanDebit(e.Amount.Neg()) {
		return nil, apperror.ErrInsufficientBalance(domain.FormatMoney(wallet.Balance), domain.FormatMoney(e.Amount.Neg()))
	}

	status := e.Status
	if status == "" {
		status = domain.TransactionStatusCompleted
	}

	txn := &domain.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		UserID:        e.UserID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance.Add(e.Amount),
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
		ReferenceType: e.ReferenceType,
		Status:        status,
		Metadata:      e.Metadata,
		CreatedAt:     time.Now().UTC(),
	}

	if err := l.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet transaction: %w", err))
	}

	if txn.IsCompleted() {
		if err := l.walletRepo.UpdateBalance(ctx, tx, wallet.ID, txn.BalanceAfter); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
	}

	return txn, nil
}

// validateAmount enforces a strictly positive amount with cent precision.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if !domain.HasMoneyPrecision(amount) {
		return apperror.Validation("Le montant ne peut pas comporter plus de deux décimales")
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func euros(d decimal.Decimal) string {
	return domain.FormatMoney(d) + " €"
}

func refType(t domain.ReferenceType) *domain.ReferenceType {
	return &t
}
