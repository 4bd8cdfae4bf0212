package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/auth"
	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/reminder"
	"github.com/enggsatyamraj/rentify-backend/internal/server"
	"github.com/enggsatyamraj/rentify-backend/internal/telemetry"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the move-in reminder job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}

			shutdownTracing, err := telemetry.Setup(ctx, "rentify", a.cfg.OTLPEndpoint, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					a.logger.Warn("flushing traces", zap.Error(err))
				}
			}()

			// Workers outlive the request context so queued mail drains on
			// shutdown.
			dispatcher := notification.NewDispatcher(a.sender(), a.logger, notification.Options{
				Workers:   a.cfg.NotifyWorkers,
				QueueSize: a.cfg.NotifyQueueSize,
			})
			dispatcher.Start(context.Background())
			defer dispatcher.Close()
			a.users = a.directory(dispatcher)

			docs := a.documents()
			bookings := a.bookings(dispatcher, docs)

			scheduler := reminder.NewScheduler(a.cfg.ReminderSchedule, reminder.Deps{
				DB:          a.db,
				Bookings:    bookings,
				Users:       user.Repository{},
				Properties:  property.Repository{},
				Notifier:    dispatcher,
				FrontendURL: a.cfg.FrontendURL,
			}, a.logger)
			if err := scheduler.Start(ctx); err != nil {
				return err
			}
			defer scheduler.Stop()

			issuer := auth.NewIssuer(a.cfg.JWTSecret, a.cfg.TokenTTL)
			router := server.NewRouter(a.db, issuer, server.Handlers{
				Users:      user.NewHandler(a.users, issuer, a.logger),
				Properties: property.NewHandler(a.properties, a.logger),
				Bookings:   booking.NewHandler(bookings, a.logger),
				Documents:  docs.Handler(),
			}, a.logger)

			return server.Run(ctx, a.cfg.HTTPAddr, router, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}
