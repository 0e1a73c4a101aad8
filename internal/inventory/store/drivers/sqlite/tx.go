package sqlite

import (
	"context"
	"database/sql"

	"github.com/assetops/stocktake/internal/inventory/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits/rollbacks; outer DB stays open

// Ping is a no-op for transactions; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users           { return &usersRepo{q: t.tx} }
func (t *txStore) Entities() store.Entities     { return &entitiesRepo{q: t.tx} }
func (t *txStore) Changes() store.Changes       { return &changesRepo{q: t.tx} }
func (t *txStore) Audit() store.Audit           { return &auditRepo{q: t.tx} }
func (t *txStore) Challenges() store.Challenges { return &challengesRepo{q: t.tx} }
func (t *txStore) Settings() store.Settings     { return &settingsRepo{q: t.tx} }
func (t *txStore) Backups() store.Backups       { return &backupsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // applied before any tx starts

func (t *txStore) DumpState(ctx context.Context) ([]byte, error) {
	return dumpState(ctx, t.tx)
}

func (t *txStore) LoadState(ctx context.Context, blob []byte) error {
	return loadState(ctx, t.tx, blob)
}

func (t *txStore) Reset(ctx context.Context) error {
	return resetState(ctx, t.tx)
}
