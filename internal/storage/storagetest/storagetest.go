// Package storagetest opens migrated databases for package tests.
package storagetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

// NewSQLite returns a migrated database in a temp-dir file. A file is used
// rather than :memory: so every pooled connection sees the same data.
func NewSQLite(t testing.TB) *storage.DB {
	t.Helper()

	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "rentify.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), zap.NewNop()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// NewPostgres connects to TEST_DATABASE_URL and migrates it. The test is
// skipped when the variable is unset or the server is unreachable.
func NewPostgres(t testing.TB) *storage.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := storage.Open(storage.DriverPostgres, dsn)
	if err != nil {
		t.Skipf("could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), zap.NewNop()); err != nil {
		t.Fatalf("migrate postgres: %v", err)
	}
	return db
}
