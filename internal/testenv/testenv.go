// Package testenv seeds users and properties on a throwaway SQLite database
// for package tests.
package testenv

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/property"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
	"github.com/enggsatyamraj/rentify-backend/internal/storage/storagetest"
	"github.com/enggsatyamraj/rentify-backend/internal/user"
)

// Env bundles a migrated database with the directory services.
type Env struct {
	DB         *storage.DB
	Events     *eventlog.Log
	Users      user.Service
	Properties property.Service
	// Mail receives the verification codes the user directory sends.
	Mail *Mailbox
}

func New(t testing.TB) *Env {
	t.Helper()
	db := storagetest.NewSQLite(t)
	events := eventlog.NewLog()
	mail := &Mailbox{}
	return &Env{
		DB:         db,
		Events:     events,
		Users:      user.NewService(db, events, zap.NewNop(), user.Options{PerMinute: 1000, Notifier: mail}),
		Properties: property.NewService(db, events, zap.NewNop()),
		Mail:       mail,
	}
}

// Mailbox keeps the latest verification code per recipient.
type Mailbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *Mailbox) Notify(_ context.Context, msgs ...notification.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	for _, msg := range msgs {
		if code, ok := msg.Payload["otp"].(string); ok && msg.Kind == notification.OTPVerification {
			m.codes[msg.To] = code
		}
	}
}

// Code returns the last code mailed to email.
func (m *Mailbox) Code(t testing.TB, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[strings.ToLower(email)]
	if !ok {
		t.Fatalf("no verification code sent to %s", email)
	}
	return code
}

// User registers and verifies an account whose first name is the email's
// local part.
func (e *Env) User(t testing.TB, email string) *user.User {
	t.Helper()
	ctx := context.Background()
	name := strings.SplitN(email, "@", 2)[0]
	if _, err := e.Users.Register(ctx, user.RegisterInput{
		Email: email, Password: "s3cret!", FirstName: name, LastName: "Test",
	}); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	u, err := e.Users.VerifyEmail(ctx, email, e.Mail.Code(t, email))
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return u
}

// Admin registers an account with moderation rights.
func (e *Env) Admin(t testing.TB, email string) *user.User {
	t.Helper()
	e.User(t, email)
	u, err := e.Users.SetAdmin(context.Background(), email, true)
	if err != nil {
		t.Fatalf("promote %s: %v", email, err)
	}
	return u
}

// PropertyOptions tweaks a seeded listing.
type PropertyOptions struct {
	Rooms         int
	AvailableFrom time.Time
	Unverified    bool
	Inactive      bool
}

// Property lists a property for owner. It is verified unless opts say
// otherwise.
func (e *Env) Property(t testing.TB, owner *user.User, opts PropertyOptions) *property.Property {
	t.Helper()
	ctx := context.Background()
	if opts.Rooms == 0 {
		opts.Rooms = 1
	}
	if opts.AvailableFrom.IsZero() {
		opts.AvailableFrom = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	p, err := e.Properties.CreateProperty(ctx, owner.ID, property.CreateInput{
		Title:         "Test listing",
		PropertyType:  property.TypeMultiRoom,
		City:          "Pune",
		BasePrice:     decimal.NewFromInt(10000),
		TotalRooms:    opts.Rooms,
		AvailableFrom: opts.AvailableFrom,
	})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if !opts.Unverified {
		if p, err = e.Properties.SetVerified(ctx, p.ID, true); err != nil {
			t.Fatalf("verify property: %v", err)
		}
	}
	if opts.Inactive {
		if err := e.Properties.DeactivateProperty(ctx, owner.ID, p.ID); err != nil {
			t.Fatalf("deactivate property: %v", err)
		}
		if p, err = e.Properties.GetProperty(ctx, p.ID); err != nil {
			t.Fatalf("reload property: %v", err)
		}
	}
	return p
}

// Reload reads the property's current row.
func (e *Env) Reload(t testing.TB, p *property.Property) *property.Property {
	t.Helper()
	got, err := e.Properties.GetProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("reload property: %v", err)
	}
	return got
}
