package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_Begin_SetsLockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SET LOCAL lock_timeout = '5000ms'`).
		WillReturnResult(pgxmock.NewResult("SET", 0))

	tx, err := NewTransactor(mock, 5*time.Second).Begin(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_Begin_NoLockTimeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})

	_, err = NewTransactor(mock, 0).Begin(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_Begin_RollsBackWhenTimeoutRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	tx, err := NewTransactor(mock, time.Second).Begin(context.Background())
	assert.Nil(t, tx)
	assert.ErrorContains(t, err, "set lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_Begin_PoolError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted}).WillReturnError(errors.New("too many clients"))

	_, err = NewTransactor(mock, time.Second).Begin(context.Background())
	assert.ErrorContains(t, err, "begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}
