// Package sqlstore provides the small amount of database/sql plumbing the
// Catalog's two SQL engines (sqlite, postgres) share: opening a connection
// and applying a schema's DDL idempotently. Grounded on the shape of the
// teacher's config/database_config.go (db_engine + db_options as the
// common surface for multiple backends).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Open opens a database/sql connection for driverName (registered by the
// engine package's import, e.g. "sqlite" via modernc.org/sqlite, "pgx" via
// github.com/jackc/pgx/v5/stdlib) and verifies it with a ping.
func Open(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s: %w", driverName, err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s: %w", driverName, err)
	}
	return db, nil
}

// Migrate applies each DDL statement in order, ignoring none of them: every
// statement is expected to be idempotent ("CREATE TABLE IF NOT EXISTS", …)
// so repeated calls across process restarts are safe.
func Migrate(db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlstore: migration statement failed: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. It gives every Store operation the row-level
// locking spec §4.4/§5 requires without repeating begin/commit/rollback
// boilerplate in every method.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
