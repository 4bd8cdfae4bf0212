// Package storage provides the relational database handle shared by every
// directory service and the booking engine. It supports Postgres for
// production and SQLite for development and tests.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// sqliteParams makes every transaction take the write lock up front, so two
// bookings for the same property can never interleave their reads.
const sqliteParams = "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"

// ErrUniqueViolation is returned (wrapped) when an insert hits a unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx. Repositories accept it
// so the same query runs inside or outside a transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DB wraps the sqlx handle with transaction and migration helpers.
type DB struct {
	*sqlx.DB
}

// Open connects to the database and verifies the connection.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + sqliteParams
		} else {
			dsn += "?" + sqliteParams
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	return &DB{DB: db}, nil
}

// Transaction runs fn inside a transaction. Any error from fn rolls the
// transaction back and is returned unchanged.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ForUpdate returns the row-lock suffix for a SELECT on q's dialect. SQLite
// has no row locks; its immediate transactions already hold the write lock.
func ForUpdate(q Queryer) string {
	if q.DriverName() == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// IsUniqueViolation reports whether err came from a unique index on either
// dialect.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, ErrUniqueViolation) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
