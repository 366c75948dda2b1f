package postgres

import (
	"context"
	"errors"
	"fmt"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const bankAccountColumnList = `id, merchant_id, account_name, iban, bic, is_default, created_at, updated_at`

// BankAccountRepo implements ports.BankAccountRepository.
// A partial unique index on (merchant_id) WHERE is_default keeps one default per merchant.
type BankAccountRepo struct {
	pool Pool
}

// NewBankAccountRepo creates a new BankAccountRepo.
func NewBankAccountRepo(pool Pool) *BankAccountRepo {
	return &BankAccountRepo{pool: pool}
}

func (r *BankAccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.MerchantBankAccount) error {
	query := `INSERT INTO merchant_bank_accounts (` + bankAccountColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		a.ID, a.MerchantID, a.AccountName, a.IBAN, a.BIC, a.IsDefault, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapWriteError("insert bank account", err)
	}
	return nil
}

func (r *BankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.MerchantBankAccount, error) {
	a, err := scanBankAccount(r.pool.QueryRow(ctx,
		`SELECT `+bankAccountColumnList+` FROM merchant_bank_accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	return a, nil
}

// ListByMerchant returns the default account first, then newest first.
func (r *BankAccountRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBankAccount, error) {
	query := `SELECT ` + bankAccountColumnList + ` FROM merchant_bank_accounts
		WHERE merchant_id = $1 ORDER BY is_default DESC, created_at DESC`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.MerchantBankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank account row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank account rows: %w", err)
	}
	return out, nil
}

func (r *BankAccountRepo) CountByMerchant(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM merchant_bank_accounts WHERE merchant_id = $1`, merchantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bank accounts: %w", err)
	}
	return n, nil
}

func (r *BankAccountRepo) ClearDefault(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) error {
	query := `UPDATE merchant_bank_accounts SET is_default = FALSE, updated_at = NOW()
		WHERE merchant_id = $1 AND is_default`

	if _, err := tx.Exec(ctx, query, merchantID); err != nil {
		return fmt.Errorf("clear default bank account: %w", err)
	}
	return nil
}

func (r *BankAccountRepo) SetDefault(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE merchant_bank_accounts SET is_default = TRUE, updated_at = NOW() WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return mapWriteError("set default bank account", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bank account not found: %s", id)
	}
	return nil
}

// PromoteLatest is a no-op when the merchant has no account left.
func (r *BankAccountRepo) PromoteLatest(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) error {
	query := `UPDATE merchant_bank_accounts SET is_default = TRUE, updated_at = NOW()
		WHERE id = (
			SELECT id FROM merchant_bank_accounts
			WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT 1
		)`

	if _, err := tx.Exec(ctx, query, merchantID); err != nil {
		return fmt.Errorf("promote latest bank account: %w", err)
	}
	return nil
}

func (r *BankAccountRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM merchant_bank_accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete bank account: %w", err)
	}
	return nil
}

func scanBankAccount(row pgx.Row) (*domain.MerchantBankAccount, error) {
	a := &domain.MerchantBankAccount{}
	err := row.Scan(&a.ID, &a.MerchantID, &a.AccountName, &a.IBAN, &a.BIC, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}
