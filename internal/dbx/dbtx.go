// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// helpers to run functions inside a transaction, and TxFunc so services
// can be handed a transaction runner instead of a concrete *sql.DB.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM scans WHERE id = $1", id)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// TxFunc runs fn inside a transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error

// SQLTx returns a TxFunc backed by db with the driver's default isolation.
func SQLTx(db *sql.DB) TxFunc {
	return func(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
		return WithTx(ctx, db, nil, fn)
	}
}

// NoTx runs fn directly against db. Intended for tests and single-statement
// callers.
func NoTx(db DBTX) TxFunc {
	return func(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
		return fn(ctx, db)
	}
}
