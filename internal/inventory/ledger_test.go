package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/testenv"
)

func TestLedgerReserveAndRelease(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	owner := env.User(t, "owner@example.com")
	p := env.Property(t, owner, testenv.PropertyOptions{Rooms: 2})
	ledger := NewLedger(env.Events)

	a, err := ledger.Reserve(ctx, env.DB, p.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, a.Available)
	assert.True(t, a.Rented)

	got := env.Reload(t, p)
	assert.Zero(t, got.AvailableRooms)
	assert.True(t, got.IsRented)
	assert.Equal(t, p.Version+1, got.Version)

	_, err = ledger.Reserve(ctx, env.DB, p.ID, 1)
	assert.Equal(t, apperr.InsufficientInventory, apperr.KindOf(err))

	a, err = ledger.Release(ctx, env.DB, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Available)

	got = env.Reload(t, p)
	assert.Equal(t, 2, got.AvailableRooms)
	assert.False(t, got.IsRented)

	version, err := env.Events.CurrentVersion(ctx, env.DB, p.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, version)
}

func TestLedgerRollsBackWithCaller(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	owner := env.User(t, "owner@example.com")
	p := env.Property(t, owner, testenv.PropertyOptions{Rooms: 3})
	ledger := NewLedger(env.Events)

	err := env.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := ledger.Reserve(ctx, tx, p.ID, 1); err != nil {
			return err
		}
		return apperr.New(apperr.Invalid, "abort")
	})
	require.Error(t, err)
	assert.Equal(t, 3, env.Reload(t, p).AvailableRooms)
}

func TestLedgerConcurrentReserves(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	owner := env.User(t, "owner@example.com")
	p := env.Property(t, owner, testenv.PropertyOptions{Rooms: 3})
	ledger := NewLedger(env.Events)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
				_, err := ledger.Reserve(ctx, tx, p.ID, 1)
				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	got := env.Reload(t, p)
	assert.Zero(t, got.AvailableRooms)
	assert.True(t, got.IsRented)
}
