package memory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errSQLUnsupported = errors.New("memory: SQL is not supported")

// Tx is the pgx.Tx handed out by Store.Begin. Only Commit and Rollback are
// meaningful; repository writes register their undo steps on it.
type Tx struct {
	store  *Store
	undo   []func()
	closed bool
}

var _ pgx.Tx = (*Tx)(nil)

func (t *Tx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.undo = nil
	<-t.store.sem
	return nil
}

func (t *Tx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.undo = nil
	<-t.store.sem
	return nil
}

func (t *Tx) Begin(_ context.Context) (pgx.Tx, error) { return nil, errSQLUnsupported }

func (t *Tx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errSQLUnsupported
}

func (t *Tx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (t *Tx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *Tx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errSQLUnsupported
}

func (t *Tx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return errRow{}
}

func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(_ ...any) error { return errSQLUnsupported }
