package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Any user may list properties and book them;
// IsAdmin grants moderation rights. Accounts cannot sign in until the
// emailed code has been confirmed.
type User struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Phone      string    `json:"phone,omitempty" db:"phone"`
	IsAdmin    bool      `json:"is_admin" db:"is_admin"`
	IsVerified bool      `json:"is_verified" db:"is_verified"`
	Version    int       `json:"version" db:"version"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name for notification payloads.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

type credential struct {
	UserID       uuid.UUID `db:"id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

// verification is the pending email code of an unverified account.
type verification struct {
	UserID    uuid.UUID    `db:"id"`
	OTP       string       `db:"otp"`
	OTPExpiry sql.NullTime `db:"otp_expiry"`
}

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// UserRegisteredEvent is recorded when an account is opened.
type UserRegisteredEvent struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// UserRoleChangedEvent is recorded when the admin flag flips.
type UserRoleChangedEvent struct {
	ID      uuid.UUID `json:"id"`
	IsAdmin bool      `json:"is_admin"`
}

// VerificationIssuedEvent is recorded whenever a new email code is sent.
type VerificationIssuedEvent struct {
	ID        uuid.UUID `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserVerifiedEvent is recorded when the email code is confirmed.
type UserVerifiedEvent struct {
	ID uuid.UUID `json:"id"`
}
