// Package server mounts the HTTP API and runs it until its context ends.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/auth"
	"github.com/enggsatyamraj/rentify-backend/internal/booking"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
	"github.com/enggsatyamraj/rentify-backend/internal/web"
)

// Handlers are the resource handlers mounted under /api.
type Handlers struct {
	Users      *user.Handler
	Properties *property.Handler
	Bookings   *booking.Handler
	// Documents serves stored contract documents under /documents/.
	Documents http.Handler
}

// NewRouter wires every route behind request ids, logging and panic
// recovery.
func NewRouter(db *storage.DB, issuer *auth.Issuer, h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))

	r.Get("/health", health(db))
	if h.Documents != nil {
		r.Handle("/documents/*", http.StripPrefix("/documents/", h.Documents))
	}

	authenticated := issuer.Middleware(logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Users.SignUp)
			r.Post("/signin", h.Users.SignIn)
			r.Post("/verify", h.Users.Verify)
			r.Post("/resend-otp", h.Users.ResendOTP)
			r.With(authenticated).Get("/me", h.Users.Me)
		})

		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.Properties.List)
			r.With(authenticated).Post("/", h.Properties.Create)
			r.With(authenticated).Get("/user", h.Properties.ListMine)
			r.With(authenticated).Get("/favorites", h.Properties.Favorites)
			r.Get("/{id}", h.Properties.Get)
			r.With(authenticated).Put("/{id}", h.Properties.Update)
			r.With(authenticated).Delete("/{id}", h.Properties.Delete)
			r.With(authenticated).Post("/{id}/favorite", h.Properties.ToggleFavorite)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated, auth.RequireAdmin(logger))
			r.Get("/properties", h.Properties.AdminList)
			r.Patch("/properties/{id}/verify", h.Properties.Verify)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", h.Bookings.Create)
			r.Get("/user", h.Bookings.ListMine)
			r.Get("/property/{propertyId}", h.Bookings.ListForProperty)
			r.Get("/{id}", h.Bookings.Get)
			r.Get("/{id}/events", h.Bookings.History)
			r.Patch("/{id}/status", h.Bookings.UpdateStatus)
			r.Patch("/{id}/move-in", h.Bookings.UpdateMoveIn)
			r.Patch("/{id}/contract", h.Bookings.UpdateContract)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.JSON(w, http.StatusNotFound, web.Envelope{Message: "Route not found"})
	})
	return r
}

func health(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		web.JSON(w, code, web.Envelope{
			Success: code == http.StatusOK,
			Message: "Server is " + status,
			Data:    map[string]string{"status": status, "database": db.DriverName()},
		})
	}
}

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to 30 seconds.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
