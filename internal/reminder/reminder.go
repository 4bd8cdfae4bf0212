// Package reminder mails tenants the day before a scheduled move-in.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

// DefaultSchedule runs the job every day at 09:00 UTC.
const DefaultSchedule = "0 9 * * *"

// Bookings lists the move-ins due in a window.
type Bookings interface {
	DueMoveIns(ctx context.Context, from, to time.Time) ([]*booking.Booking, error)
}

type Deps struct {
	DB          storage.Queryer
	Bookings    Bookings
	Users       booking.UserDirectory
	Properties  booking.PropertyDirectory
	Notifier    booking.Notifier
	FrontendURL string
}

// Scheduler runs the reminder job on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewScheduler(spec string, deps Deps, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	deps.FrontendURL = strings.TrimSuffix(deps.FrontendURL, "/")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:   spec,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("move-in reminders failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule move-in reminders %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("move-in reminder scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sends a reminder for every confirmed booking whose move-in falls
// on the next calendar day (UTC). It returns the number of reminders queued.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	due, err := s.deps.Bookings.DueMoveIns(ctx, from, to)
	if err != nil {
		return 0, err
	}

	msgs := make([]notification.Message, 0, len(due))
	for _, b := range due {
		msg, err := s.message(ctx, b)
		if err != nil {
			s.logger.Warn("skipping move-in reminder", zap.String("booking_id", b.ID.String()), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	s.deps.Notifier.Notify(ctx, msgs...)

	s.logger.Info("move-in reminders queued",
		zap.Time("move_in_date", from),
		zap.Int("due", len(due)),
		zap.Int("queued", len(msgs)),
	)
	return len(msgs), nil
}

func (s *Scheduler) message(ctx context.Context, b *booking.Booking) (notification.Message, error) {
	tenant, err := s.deps.Users.FindByID(ctx, s.deps.DB, b.TenantID)
	if err != nil {
		return notification.Message{}, err
	}
	p, err := s.deps.Properties.FindByID(ctx, s.deps.DB, b.PropertyID, false)
	if err != nil {
		return notification.Message{}, err
	}
	return notification.Message{
		To:   tenant.Email,
		Kind: notification.MoveInReminder,
		Payload: map[string]interface{}{
			"first_name":     tenant.FirstName,
			"property_title": p.Title,
			"address":        p.Address,
			"booking_id":     b.ID.String(),
			"move_in_date":   b.MoveIn.ScheduledDate.Format(time.DateOnly),
			"details_url":    s.deps.FrontendURL + "/dashboard/bookings/" + b.ID.String(),
		},
	}, nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
