package drill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// Env is what the built-in experiments drive.
type Env struct {
	DB         *storage.DB
	Users      user.Service
	Properties property.Service
	// NewBookings builds a booking engine that notifies through n.
	NewBookings func(n booking.Notifier) booking.Service
	Logger      *zap.Logger
}

const inconsistentInventory = `SELECT COUNT(*) FROM properties WHERE available_rooms < 0 OR available_rooms > total_rooms`

func inventoryInconsistencies(db *storage.DB) Metric {
	return Metric{
		Name: "inventory_inconsistencies",
		Query: func(ctx context.Context) (float64, error) {
			var n int
			if err := db.GetContext(ctx, &n, inconsistentInventory); err != nil {
				return 0, err
			}
			return float64(n), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// stage holds what one experiment seeded.
type stage struct {
	mu       sync.Mutex
	owner    *user.User
	tenants  []*user.User
	property *property.Property
	booked   []*booking.Booking
}

func (s *stage) add(b *booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.booked = append(s.booked, b)
}

func (s *stage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.booked)
}

func seed(ctx context.Context, env Env, s *stage, label string, tenants, rooms int) error {
	run := uuid.NewString()[:8]
	register := func(role string) (*user.User, error) {
		return env.Users.Register(ctx, user.RegisterInput{
			Email:     fmt.Sprintf("drill-%s-%s@rentify.local", run, role),
			Password:  uuid.NewString(),
			FirstName: "Drill",
			LastName:  role,
		})
	}

	owner, err := register("owner")
	if err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	s.owner = owner
	for i := 0; i < tenants; i++ {
		t, err := register(fmt.Sprintf("tenant%d", i))
		if err != nil {
			return fmt.Errorf("seed tenant %d: %w", i, err)
		}
		s.tenants = append(s.tenants, t)
	}

	p, err := env.Properties.CreateProperty(ctx, owner.ID, property.CreateInput{
		Title:         "Drill listing " + label + " " + run,
		PropertyType:  property.TypeMultiRoom,
		City:          "Drill",
		BasePrice:     decimal.NewFromInt(1000),
		TotalRooms:    rooms,
		AvailableFrom: today(),
	})
	if err != nil {
		return fmt.Errorf("seed property: %w", err)
	}
	if p, err = env.Properties.SetVerified(ctx, p.ID, true); err != nil {
		return fmt.Errorf("verify property: %w", err)
	}
	s.property = p
	return nil
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func availableRooms(env Env, s *stage) Metric {
	return Metric{
		Name: "available_rooms",
		Query: func(ctx context.Context) (float64, error) {
			if s.property == nil {
				return 0, nil
			}
			p, err := env.Properties.GetProperty(ctx, s.property.ID)
			if err != nil {
				return 0, err
			}
			return float64(p.AvailableRooms), nil
		},
		Threshold: Threshold{Operator: ">=", Value: 0},
	}
}

// cancelAll cancels every booking the experiment placed, as the owner, and
// checks the rooms came back.
func cancelAll(env Env, bookings booking.Service, s *stage) Action {
	return Action{
		Type:   "cancel_bookings",
		Target: "bookings",
		Execute: func(ctx context.Context) error {
			s.mu.Lock()
			placed := append([]*booking.Booking(nil), s.booked...)
			s.mu.Unlock()

			var errs []error
			for _, b := range placed {
				_, err := bookings.UpdateBookingStatus(ctx, s.owner.ID, b.ID, booking.StatusInput{
					Status: booking.StatusCancelled,
					Reason: "Drill rollback",
				})
				if err != nil {
					errs = append(errs, fmt.Errorf("cancel %s: %w", b.ID, err))
				}
			}
			if s.property == nil {
				return errors.Join(errs...)
			}
			p, err := env.Properties.GetProperty(ctx, s.property.ID)
			if err != nil {
				return errors.Join(append(errs, err)...)
			}
			if p.AvailableRooms != p.TotalRooms {
				errs = append(errs, fmt.Errorf("rooms not restored: %d of %d available", p.AvailableRooms, p.TotalRooms))
			}
			return errors.Join(errs...)
		},
	}
}

// ConcurrentBookingRace fires one booking per tenant at a property with
// fewer rooms than tenants, all at once. Exactly rooms bookings may win.
func ConcurrentBookingRace(env Env, tenants, rooms int) Experiment {
	s := &stage{}
	bookings := env.NewBookings(discard{})
	var refused, failed atomic.Int64

	return Experiment{
		Name:       "concurrent-booking-race",
		Hypothesis: fmt.Sprintf("%d concurrent bookings against %d rooms never oversell the property", tenants, rooms),
		SteadyState: []Metric{
			inventoryInconsistencies(env.DB),
			availableRooms(env, s),
			{
				Name:      "successful_bookings",
				Query:     func(context.Context) (float64, error) { return float64(s.count()), nil },
				Threshold: Threshold{Operator: "<=", Value: float64(rooms)},
			},
			{
				Name:      "unexpected_failures",
				Query:     func(context.Context) (float64, error) { return float64(failed.Load()), nil },
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "seed",
				Target: "database",
				Execute: func(ctx context.Context) error {
					return seed(ctx, env, s, "race", tenants, rooms)
				},
			},
			{
				Type:   "concurrent_bookings",
				Target: "booking",
				Execute: func(ctx context.Context) error {
					if s.property == nil {
						return errors.New("nothing seeded")
					}
					start := today().AddDate(0, 0, 30)
					var wg sync.WaitGroup
					for _, t := range s.tenants {
						wg.Add(1)
						go func(t *user.User) {
							defer wg.Done()
							b, err := bookings.CreateBooking(ctx, t.ID, booking.CreateInput{
								PropertyID:  s.property.ID,
								StartDate:   start,
								BookingType: booking.TypeMonthToMonth,
								RoomCount:   1,
							})
							switch {
							case err == nil:
								s.add(b)
							case refusal(err):
								refused.Add(1)
							default:
								failed.Add(1)
								env.Logger.Warn("drill booking failed", zap.Error(err))
							}
						}(t)
					}
					wg.Wait()
					env.Logger.Info("race finished",
						zap.Int("won", s.count()),
						zap.Int64("refused", refused.Load()),
						zap.Int64("failed", failed.Load()),
					)
					return nil
				},
			},
		},
		Rollback: []Action{cancelAll(env, bookings, s)},
		Validation: []Assertion{
			{
				Metric:    "inventory_inconsistencies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "a property holds negative or surplus rooms",
			},
			{
				Metric:    "successful_bookings",
				Condition: func(v float64) bool { return int(v) == min(rooms, tenants) },
				Message:   fmt.Sprintf("expected exactly %d bookings to succeed", min(rooms, tenants)),
			},
			{
				Metric:    "available_rooms",
				Condition: func(v float64) bool { return int(v) == rooms-min(rooms, tenants) },
				Message:   "available rooms do not match the bookings placed",
			},
			{
				Metric:    "unexpected_failures",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "bookings failed for reasons other than inventory",
			},
		},
	}
}

// MailOutage places bookings while every mail delivery fails. Bookings
// must still commit and the breaker must stop hammering the transport.
func MailOutage(env Env, bookingsToPlace int) Experiment {
	s := &stage{}
	down := &downSender{}
	dispatcher := notification.NewDispatcher(down, env.Logger, notification.Options{
		Workers:         2,
		MaxTries:        3,
		InitialBackoff:  5 * time.Millisecond,
		MaxBackoff:      20 * time.Millisecond,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	})
	bookings := env.NewBookings(dispatcher)
	// Each booking mails the tenant and the owner.
	messages := 2 * bookingsToPlace

	return Experiment{
		Name:       "mail-outage",
		Hypothesis: "bookings commit while mail delivery is down",
		SteadyState: []Metric{
			inventoryInconsistencies(env.DB),
			availableRooms(env, s),
			{
				Name:      "successful_bookings",
				Query:     func(context.Context) (float64, error) { return float64(s.count()), nil },
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
			{
				Name:      "delivery_attempts",
				Query:     func(context.Context) (float64, error) { return float64(down.attempts.Load()), nil },
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "seed",
				Target: "database",
				Execute: func(ctx context.Context) error {
					return seed(ctx, env, s, "outage", bookingsToPlace, bookingsToPlace)
				},
			},
			{
				Type:   "bookings_during_outage",
				Target: "notification",
				Execute: func(ctx context.Context) error {
					if s.property == nil {
						return errors.New("nothing seeded")
					}
					dispatcher.Start(ctx)
					defer dispatcher.Close()

					start := today().AddDate(0, 0, 14)
					end := start.AddDate(0, 6, 0)
					var errs []error
					for _, t := range s.tenants {
						b, err := bookings.CreateBooking(ctx, t.ID, booking.CreateInput{
							PropertyID:  s.property.ID,
							StartDate:   start,
							EndDate:     &end,
							BookingType: booking.TypeFixedTerm,
							RoomCount:   1,
						})
						if err != nil {
							errs = append(errs, err)
							continue
						}
						s.add(b)
					}
					return errors.Join(errs...)
				},
			},
		},
		Rollback: []Action{cancelAll(env, bookings, s)},
		Validation: []Assertion{
			{
				Metric:    "successful_bookings",
				Condition: func(v float64) bool { return int(v) == bookingsToPlace },
				Message:   "a booking failed because mail was down",
			},
			{
				Metric:    "available_rooms",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "rooms were not reserved for every booking",
			},
			{
				Metric:    "delivery_attempts",
				Condition: func(v float64) bool { return v > 0 && int(v) < messages*3 },
				Message:   "the circuit breaker did not cut off delivery attempts",
			},
			{
				Metric:    "inventory_inconsistencies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "a property holds negative or surplus rooms",
			},
		},
	}
}

// Builtin returns the experiments the drill command knows by name.
func Builtin(env Env, tenants, rooms int) map[string]Experiment {
	return map[string]Experiment{
		"concurrent-booking-race": ConcurrentBookingRace(env, tenants, rooms),
		"mail-outage":             MailOutage(env, rooms),
	}
}

// refusal reports whether err is the engine turning a booking away for
// lack of rooms, as opposed to a fault.
func refusal(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.InsufficientInventory, apperr.CapacityExceeded, apperr.Conflict:
		return true
	}
	return false
}

type discard struct{}

func (discard) Notify(context.Context, ...notification.Message) {}

type downSender struct {
	attempts atomic.Int64
}

func (d *downSender) Send(context.Context, notification.Message) error {
	d.attempts.Add(1)
	return errors.New("smtp: connection refused")
}
