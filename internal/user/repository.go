package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

const userColumns = `id, email, first_name, last_name, phone, is_admin, is_verified, version, created_at, updated_at`

// Repository reads users on any Queryer, so the booking engine can resolve
// actors inside its own transaction.
type Repository struct{}

// FindByID returns the user or a NotFound error.
func (Repository) FindByID(ctx context.Context, q storage.Queryer, id uuid.UUID) (*User, error) {
	var u User
	err := q.GetContext(ctx, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return normalize(&u), nil
}

func findByEmail(ctx context.Context, q storage.Queryer, email string) (*User, error) {
	var u User
	err := q.GetContext(ctx, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return normalize(&u), nil
}

func findCredential(ctx context.Context, q storage.Queryer, id uuid.UUID) (*credential, error) {
	var c credential
	if err := q.GetContext(ctx, &c, q.Rebind(`SELECT id, password_hash, salt FROM users WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func findVerification(ctx context.Context, q storage.Queryer, id uuid.UUID) (*verification, error) {
	var v verification
	if err := q.GetContext(ctx, &v, q.Rebind(`SELECT id, otp, otp_expiry FROM users WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return &v, nil
}

func insert(ctx context.Context, q storage.Queryer, u *User, c *credential, v *verification) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO users (id, email, password_hash, salt, first_name, last_name, phone, is_admin, is_verified,
			otp, otp_expiry, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Email, c.PasswordHash, c.Salt, u.FirstName, u.LastName, u.Phone, u.IsAdmin, u.IsVerified,
		v.OTP, v.OTPExpiry, u.Version, u.CreatedAt, u.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "User already exists")
	}
	return err
}

func updateRole(ctx context.Context, q storage.Queryer, u *User, expectedVersion int) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE users SET is_admin = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`), u.IsAdmin, u.Version, u.UpdatedAt, u.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "User was modified concurrently")
	}
	return nil
}

// updateVerification writes the profile names, the verified flag and the
// pending code together.
func updateVerification(ctx context.Context, q storage.Queryer, u *User, v *verification, expectedVersion int) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE users SET first_name = ?, last_name = ?, is_verified = ?, otp = ?, otp_expiry = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`), u.FirstName, u.LastName, u.IsVerified, v.OTP, v.OTPExpiry, u.Version, u.UpdatedAt, u.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update user verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "User was modified concurrently")
	}
	return nil
}

func normalize(u *User) *User {
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
