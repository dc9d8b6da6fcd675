package sqlite

import (
	"context"
	"database/sql"

	"github.com/quorumsec/gatehouse/internal/identity/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // outer DB stays open; caller commits/rolls back

// Ping is a no-op for transactions; the connection already exists.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx starts

func (t *txStore) Users() store.Users                     { return &usersRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                     { return &rolesRepo{db: t.tx} }
func (t *txStore) Tickets() store.Tickets                 { return &ticketsRepo{db: t.tx} }
func (t *txStore) OneTimeCodes() store.OneTimeCodes       { return &codesRepo{db: t.tx} }
func (t *txStore) LoginChallenges() store.LoginChallenges { return &challengesRepo{db: t.tx} }
func (t *txStore) RecoveryCodes() store.RecoveryCodes     { return &recoveryCodesRepo{db: t.tx} }
