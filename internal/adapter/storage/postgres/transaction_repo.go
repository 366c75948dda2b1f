package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumnList = `id, wallet_id, user_id, type, amount, balance_before, balance_after,
		description, reference_id, reference_type, status, metadata, created_at`

// TransactionRepo implements ports.WalletTransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a ledger entry within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.WalletTransaction) error {
	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO wallet_transactions (` + transactionColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.Exec(ctx, query,
		t.ID, t.WalletID, t.UserID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.Description, t.ReferenceID, t.ReferenceType, t.Status, metadata, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

// GetByID fetches a ledger entry by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM wallet_transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet transaction: %w", err)
	}
	return t, nil
}

// List fetches a user's ledger entries with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.WalletTransaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM wallet_transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count wallet transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM wallet_transactions %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, transactionColumnList, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.WalletTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan wallet transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallet transaction rows: %w", err)
	}
	return txns, total, nil
}

// SumCompleted returns the sum of completed entries of a wallet, which must
// equal its stored balance.
func (r *TransactionRepo) SumCompleted(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'completed'`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet transactions: %w", err)
	}
	return sum, nil
}

// GetStats aggregates a user's completed entries since the given time.
func (r *TransactionRepo) GetStats(ctx context.Context, userID uuid.UUID, since *time.Time) (*ports.WalletStats, error) {
	args := []any{userID}
	condition := "user_id = $1 AND status = 'completed'"
	if since != nil {
		condition += " AND created_at >= $2"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0) AS credits,
		COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0) AS debits,
		COALESCE(SUM(amount) FILTER (WHERE type = 'merchant_payment'), 0) AS merchant_payments,
		COALESCE(-SUM(amount) FILTER (WHERE type = 'withdrawal'), 0) AS withdrawn
		FROM wallet_transactions WHERE %s`, condition)

	stats := &ports.WalletStats{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TransactionCount, &stats.TotalCredits, &stats.TotalDebits,
		&stats.MerchantPayments, &stats.Withdrawn,
	)
	if err != nil {
		return nil, fmt.Errorf("get wallet stats: %w", err)
	}
	return stats, nil
}

// scanTransaction scans a single row into a WalletTransaction.
func scanTransaction(row pgx.Row) (*domain.WalletTransaction, error) {
	t := &domain.WalletTransaction{}
	var metadata []byte
	err := row.Scan(
		&t.ID, &t.WalletID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.Description, &t.ReferenceID, &t.ReferenceType, &t.Status, &metadata, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return t, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
