package sqldb

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tally/internal/tally/store"
)

type txStore struct {
	repos
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.e.mapError(t.tx.Commit()) }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer store owns the connection

// Ping is a no-op for transactions. The connection is already established
// when the transaction is created.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run on the store, never inside a tx
