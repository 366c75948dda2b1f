package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const withdrawalColumnList = `id, merchant_id, wallet_id, requested_amount, commission_amount, net_amount,
		status, bank_account_name, bank_account_iban, bank_account_bic, rejection_reason,
		debit_transaction_id, processed_by, processed_at, created_at, updated_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a withdrawal request within a transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	query := `INSERT INTO withdrawal_requests (` + withdrawalColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		w.ID, w.MerchantID, w.WalletID, w.RequestedAmount, w.CommissionAmount, w.NetAmount,
		w.Status, w.BankAccountName, w.BankAccountIBAN, w.BankAccountBIC, w.RejectionReason,
		w.DebitTransactionID, w.ProcessedBy, w.ProcessedAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal request: %w", err)
	}
	return nil
}

// GetByID fetches a withdrawal request (non-locking read).
func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumnList+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal request: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate locks the request row so transitions serialize.
// This MUST be called within a transaction.
func (r *WithdrawalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumnList+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("get withdrawal request for update: %w", err)
	}
	return w, nil
}

// Update persists the mutable columns of a request.
func (r *WithdrawalRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	query := `UPDATE withdrawal_requests
		SET status = $1, rejection_reason = $2, debit_transaction_id = $3,
			processed_by = $4, processed_at = $5, updated_at = $6
		WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		w.Status, w.RejectionReason, w.DebitTransactionID,
		w.ProcessedBy, w.ProcessedAt, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update withdrawal request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal request not found: %s", w.ID)
	}
	return nil
}

// List fetches withdrawal requests with optional merchant and status filters, newest first.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.MerchantID != nil {
		conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
		args = append(args, *params.MerchantID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM withdrawal_requests %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawal requests: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM withdrawal_requests %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, withdrawalColumnList, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawal requests: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan withdrawal row: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate withdrawal rows: %w", err)
	}
	return out, total, nil
}

// SumRequested totals the requested amounts of a merchant's requests in the given statuses.
func (r *WithdrawalRepo) SumRequested(ctx context.Context, merchantID uuid.UUID, statuses []domain.WithdrawalStatus) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT COALESCE(SUM(requested_amount), 0) FROM withdrawal_requests
		WHERE merchant_id = $1 AND status = ANY($2)`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, merchantID, names).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum withdrawal requests: %w", err)
	}
	return sum, nil
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	w := &domain.WithdrawalRequest{}
	err := row.Scan(
		&w.ID, &w.MerchantID, &w.WalletID, &w.RequestedAmount, &w.CommissionAmount, &w.NetAmount,
		&w.Status, &w.BankAccountName, &w.BankAccountIBAN, &w.BankAccountBIC, &w.RejectionReason,
		&w.DebitTransactionID, &w.ProcessedBy, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
