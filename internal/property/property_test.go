package property

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/storage/storagetest"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

type fixture struct {
	svc   *service
	log   *eventlog.Log
	owner uuid.UUID
	other uuid.UUID
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewSQLite(t)
	log := eventlog.NewLog()
	users := user.NewService(db, log, zap.NewNop(), user.Options{PerMinute: 100})

	register := func(email string) uuid.UUID {
		u, err := users.Register(context.Background(), user.RegisterInput{Email: email, Password: "s3cret!", FirstName: "Test", LastName: "User"})
		require.NoError(t, err)
		return u.ID
	}

	f := &fixture{
		log:   log,
		owner: register("owner@example.com"),
		other: register("other@example.com"),
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(db, log, zap.NewNop()).(*service)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) create(t *testing.T, title, city string, price int64, rooms int) *Property {
	t.Helper()
	p, err := f.svc.CreateProperty(context.Background(), f.owner, CreateInput{
		Title:         title,
		PropertyType:  TypeMultiRoom,
		City:          city,
		BasePrice:     decimal.NewFromInt(price),
		TotalRooms:    rooms,
		AvailableFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestCreateProperty(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "Sunny flat", "Pune", 12000, 3)

	assert.Equal(t, 3, p.AvailableRooms)
	assert.True(t, p.IsActive)
	assert.False(t, p.IsVerified)
	assert.False(t, p.Bookable())
	assert.Equal(t, BillMonthly, p.BillType)

	got, err := f.svc.GetProperty(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12000).Equal(got.BasePrice))
	assert.Equal(t, p.AvailableFrom, got.AvailableFrom)

	_, err = f.svc.CreateProperty(context.Background(), f.owner, CreateInput{Title: "Nothing", TotalRooms: 0, BasePrice: decimal.NewFromInt(1)})
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestListPropertiesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cheap := f.create(t, "Cheap room", "Pune", 900, 1)
	f.create(t, "Mid room", "Mumbai", 5000, 1)
	pricey := f.create(t, "Pricey flat", "pune", 20000, 2)

	props, total, err := f.svc.ListProperties(ctx, Filter{City: "PUNE", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, props, 2)
	assert.Equal(t, pricey.ID, props[0].ID, "newest first")
	assert.Equal(t, cheap.ID, props[1].ID)

	minPrice := decimal.NewFromInt(1000)
	props, total, err = f.svc.ListProperties(ctx, Filter{MinPrice: &minPrice, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, p := range props {
		assert.True(t, p.BasePrice.GreaterThanOrEqual(minPrice), p.Title)
	}

	props, total, err = f.svc.ListProperties(ctx, Filter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, props, 1)
	assert.Equal(t, cheap.ID, props[0].ID)
}

func TestUpdatePropertyOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "Sunny flat", "Pune", 12000, 3)

	title := "Sunny flat near park"
	_, err := f.svc.UpdateProperty(ctx, f.other, p.ID, UpdateInput{Title: &title})
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	updated, err := f.svc.UpdateProperty(ctx, f.owner, p.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 3, updated.AvailableRooms)

	_, err = f.svc.UpdateProperty(ctx, f.owner, p.ID, UpdateInput{Title: &title})
	assert.Equal(t, apperr.NoOp, apperr.KindOf(err))

	events, err := f.log.Load(ctx, f.svc.db, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "PropertyUpdated", events[1].EventType)
}

func TestDeactivateAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, "Sunny flat", "Pune", 12000, 3)

	verified, err := f.svc.SetVerified(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, verified.Bookable())

	unverified := false
	props, total, err := f.svc.ListAllProperties(ctx, AdminFilter{IsVerified: &unverified, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, props)

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(f.svc.DeactivateProperty(ctx, f.other, p.ID)))
	require.NoError(t, f.svc.DeactivateProperty(ctx, f.owner, p.ID))

	props, _, err = f.svc.ListProperties(ctx, Filter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, props)

	mine, err := f.svc.ListOwnerProperties(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.False(t, mine[0].IsActive)
	assert.Equal(t, 3, mine[0].Version)

	_, err = f.svc.SetVerified(ctx, uuid.New(), true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "Sunny flat", "Pune", 12000, 3)
	second := f.create(t, "Quiet room", "Pune", 8000, 1)

	p, added, err := f.svc.ToggleFavorite(ctx, f.other, first.ID)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, p.FavoriteCount)

	_, _, err = f.svc.ToggleFavorite(ctx, f.owner, first.ID)
	require.NoError(t, err)
	_, _, err = f.svc.ToggleFavorite(ctx, f.other, second.ID)
	require.NoError(t, err)

	got, err := f.svc.GetProperty(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FavoriteCount)
	assert.Equal(t, first.Version, got.Version, "favourites do not bump the listing version")

	mine, err := f.svc.ListFavorites(ctx, f.other)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)

	p, added, err = f.svc.ToggleFavorite(ctx, f.other, first.ID)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, p.FavoriteCount)

	mine, err = f.svc.ListFavorites(ctx, f.other)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)

	_, _, err = f.svc.ToggleFavorite(ctx, f.other, uuid.New())
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, "Property not found", apperr.MessageOf(err))
}
