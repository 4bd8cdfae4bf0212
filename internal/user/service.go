package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/enggsatyamraj/rentify-backend/internal/notification"
)

// Service defines the user directory operations.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	VerifyEmail(ctx context.Context, email, otp string) (*User, error)
	ResendOTP(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	SetAdmin(ctx context.Context, email string, admin bool) (*User, error)
}

// Notifier delivers verification and welcome mail after commit.
type Notifier interface {
	Notify(ctx context.Context, msgs ...notification.Message)
}
