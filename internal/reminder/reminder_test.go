package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/inventory"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/testenv"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (r *recorder) Notify(_ context.Context, msgs ...notification.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

func TestRunOnceRemindsTomorrowsMoveIns(t *testing.T) {
	ctx := context.Background()
	env := testenv.New(t)
	notes := &recorder{}
	bookings := booking.NewService(env.DB, booking.Deps{
		Users:      user.Repository{},
		Properties: property.Repository{},
		Ledger:     inventory.NewLedger(env.Events),
		Events:     env.Events,
		Notifier:   notes,
	}, zap.NewNop())

	owner := env.User(t, "owner@example.com")
	tenant := env.User(t, "tenant@example.com")
	p := env.Property(t, owner, testenv.PropertyOptions{Rooms: 3})

	book := func(start string, confirm bool) *booking.Booking {
		s, err := time.Parse(time.DateOnly, start)
		require.NoError(t, err)
		b, err := bookings.CreateBooking(ctx, tenant.ID, booking.CreateInput{
			PropertyID: p.ID, StartDate: s, BookingType: booking.TypeMonthToMonth, RoomCount: 1,
		})
		require.NoError(t, err)
		if confirm {
			b, err = bookings.UpdateBookingStatus(ctx, owner.ID, b.ID, booking.StatusInput{Status: booking.StatusConfirmed})
			require.NoError(t, err)
		}
		return b
	}
	due := book("2026-02-01", true)
	book("2026-02-01", false)
	book("2026-02-05", true)
	notes.reset()

	s := NewScheduler("", Deps{
		DB:          env.DB,
		Bookings:    bookings,
		Users:       user.Repository{},
		Properties:  property.Repository{},
		Notifier:    notes,
		FrontendURL: "https://rentify.test/",
	}, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC) }

	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, notes.msgs, 1)
	msg := notes.msgs[0]
	assert.Equal(t, notification.MoveInReminder, msg.Kind)
	assert.Equal(t, "tenant@example.com", msg.To)
	assert.Equal(t, "2026-02-01", msg.Payload["move_in_date"])
	assert.Equal(t, "https://rentify.test/dashboard/bookings/"+due.ID.String(), msg.Payload["details_url"])

	s.now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler("every tuesday", Deps{}, zap.NewNop())
	assert.Error(t, s.Start(context.Background()))

	s = NewScheduler("*/5 * * * *", Deps{}, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
