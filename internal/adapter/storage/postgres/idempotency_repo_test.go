package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"surplus-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	log := &domain.IdempotencyLog{
		Key:           domain.BuildIdempotencyKey(uuid.New(), "recharge", "retry-1"),
		TransactionID: uuid.New(),
		ResponseJSON:  []byte(`{"status":"completed"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_logs").
		WithArgs(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, log)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Create_DuplicateKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	log := &domain.IdempotencyLog{Key: "u:pay:k", TransactionID: uuid.New(), CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_logs").
		WithArgs(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, log)
	assert.ErrorContains(t, err, `insert idempotency log "u:pay:k"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	txID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs("user:pay:order-001").
		WillReturnRows(pgxmock.NewRows([]string{"key", "transaction_id", "response_json", "created_at"}).
			AddRow("user:pay:order-001", txID, []byte(`{"status":"completed"}`), now))

	result, err := repo.Get(context.Background(), "user:pay:order-001")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txID, result.TransactionID)
	assert.Equal(t, []byte(`{"status":"completed"}`), result.ResponseJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs("nonexistent-key").
		WillReturnRows(pgxmock.NewRows([]string{"key", "transaction_id", "response_json", "created_at"}))

	result, err := repo.Get(context.Background(), "nonexistent-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
