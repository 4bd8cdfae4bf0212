package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/config"
	"github.com/enggsatyamraj/rentify-backend/internal/document"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/inventory"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// app holds what every subcommand shares: settings, a migrated database
// and the directory services.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *storage.DB
	events     *eventlog.Log
	users      user.Service
	properties property.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	events := eventlog.NewLog()
	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		events:     events,
		properties: property.NewService(db, events, logger),
	}
	a.users = a.directory(nil)
	return a, nil
}

// directory builds the user service. Verification codes go through n; a nil
// n sends none, which suits drills and migrations.
func (a *app) directory(n user.Notifier) user.Service {
	return user.NewService(a.db, a.events, a.logger, user.Options{
		PerMinute:   a.cfg.AuthRatePerMinute,
		Notifier:    n,
		FrontendURL: a.cfg.FrontendURL,
	})
}

func (a *app) close() {
	a.db.Close()
	_ = a.logger.Sync()
}

// bookings builds the booking engine around n.
func (a *app) bookings(n booking.Notifier, docs booking.DocumentStore) booking.Service {
	return booking.NewService(a.db, booking.Deps{
		Users:       user.Repository{},
		Properties:  property.Repository{},
		Ledger:      inventory.NewLedger(a.events),
		Events:      a.events,
		Documents:   docs,
		Notifier:    n,
		FrontendURL: a.cfg.FrontendURL,
	}, a.logger)
}

func (a *app) documents() *document.DiskStore {
	return document.NewDiskStore(a.cfg.DocumentDir, a.cfg.DocumentBaseURL)
}

// sender picks the mail transport: an HTTP relay, then SMTP, then the log.
func (a *app) sender() notification.Sender {
	switch {
	case a.cfg.MailRelayURL != "":
		a.logger.Info("mail via relay", zap.String("url", a.cfg.MailRelayURL))
		return notification.NewRelaySender(a.cfg.MailRelayURL)
	case a.cfg.SMTPHost != "":
		a.logger.Info("mail via smtp", zap.String("host", a.cfg.SMTPHost), zap.Int("port", a.cfg.SMTPPort))
		return notification.SMTPSender{
			Host:     a.cfg.SMTPHost,
			Port:     a.cfg.SMTPPort,
			Username: a.cfg.SMTPUsername,
			Password: a.cfg.SMTPPassword,
			From:     a.cfg.MailFrom,
		}
	default:
		a.logger.Warn("no mail transport configured, notifications are logged only")
		return notification.LogSender{Logger: a.logger}
	}
}
