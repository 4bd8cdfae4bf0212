package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/storage/storagetest"
)

func insertUser(ctx context.Context, q storage.Queryer, email string) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO users (id, email, password_hash, salt, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, 'h', 's', 'Test', 'User', ?, ?)
	`), uuid.New(), email, now, now)
	return err
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx, zap.NewNop()))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, 5, count)
}

func TestTransactionRollsBack(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
		require.NoError(t, insertUser(ctx, tx, "rollback@example.com"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"))
	assert.Zero(t, count)
}

func TestUniqueViolation(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()

	require.NoError(t, insertUser(ctx, db, "dup@example.com"))
	err := insertUser(ctx, db, "dup@example.com")
	require.Error(t, err)
	assert.True(t, storage.IsUniqueViolation(err))
	assert.False(t, storage.IsUniqueViolation(errors.New("other")))
}

func TestForUpdate(t *testing.T) {
	db := storagetest.NewSQLite(t)
	assert.Empty(t, storage.ForUpdate(db))
}

func TestInventoryCheckConstraint(t *testing.T) {
	db := storagetest.NewSQLite(t)
	ctx := context.Background()

	owner := uuid.New()
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, salt, first_name, last_name, created_at, updated_at)
		VALUES (?, 'owner@example.com', 'h', 's', 'O', 'W', ?, ?)
	`, owner, now, now)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `
		INSERT INTO properties (id, owner_id, title, property_type, city, base_price, total_rooms, available_rooms, available_from, created_at, updated_at)
		VALUES (?, ?, 'Flat', 'flat', 'Pune', '1000', 2, 3, ?, ?, ?)
	`, uuid.New(), owner, now, now, now)
	assert.Error(t, err)
}
