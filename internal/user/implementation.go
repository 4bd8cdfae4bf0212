package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/eventlog"
	"github.com/enggsatyamraj/rentify-backend/internal/notification"
	"github.com/enggsatyamraj/rentify-backend/internal/storage"
)

const aggregateType = "user"

// otpTTL is how long an emailed verification code stays valid.
const otpTTL = 10 * time.Minute

// Options configures the user directory.
type Options struct {
	// PerMinute bounds sign-up, sign-in and verification attempts per email.
	PerMinute int
	// Notifier delivers verification codes. Nil skips delivery.
	Notifier Notifier
	// FrontendURL is linked from the welcome mail.
	FrontendURL string
}

// service implements the Service interface.
type service struct {
	db       *storage.DB
	events   *eventlog.Log
	repo     Repository
	limiters *keyedLimiter
	notifier Notifier
	frontend string
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the user directory.
func NewService(db *storage.DB, events *eventlog.Log, logger *zap.Logger, opts Options) Service {
	return &service{
		db:       db,
		events:   events,
		limiters: newKeyedLimiter(opts.PerMinute),
		notifier: opts.Notifier,
		frontend: strings.TrimSuffix(opts.FrontendURL, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// Register opens an unverified account and mails it a code. Emails are
// unique, case-insensitively. Signing up again with an email that was never
// verified refreshes the names and issues a new code.
func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := normalizeEmail(in.Email)
	if !s.limiters.allow(email) {
		return nil, apperr.New(apperr.RateLimited, "Too many attempts, try again later")
	}

	passwordHash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	v, err := s.newVerification()
	if err != nil {
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	var u *User
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		existing, err := findByEmail(ctx, tx, email)
		switch {
		case err == nil && existing.IsVerified:
			return apperr.New(apperr.Conflict, "User already exists, please login")
		case err == nil:
			existing.FirstName = in.FirstName
			existing.LastName = in.LastName
			u = existing
			return s.reissue(ctx, tx, u, v)
		case apperr.KindOf(err) != apperr.NotFound:
			return err
		}

		u = &User{
			ID:        uuid.New(),
			Email:     email,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		v.UserID = u.ID
		event, err := eventlog.New("UserRegistered", UserRegisteredEvent{ID: u.ID, Email: u.Email, Name: u.FullName()}, nil)
		if err != nil {
			return err
		}
		if err := insert(ctx, tx, u, &credential{UserID: u.ID, PasswordHash: passwordHash, Salt: salt}, v); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, tx, u.ID, aggregateType, 0, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	s.sendCode(ctx, u, v)
	return u, nil
}

// VerifyEmail confirms the emailed code. Wrong, expired and already used
// codes fail identically.
func (s *service) VerifyEmail(ctx context.Context, email, otp string) (*User, error) {
	email = normalizeEmail(email)
	if !s.limiters.allow(email) {
		return nil, apperr.New(apperr.RateLimited, "Too many attempts, try again later")
	}

	invalid := apperr.New(apperr.Invalid, "Invalid or expired verification code. Please request a new one.")
	var u *User
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = findByEmail(ctx, tx, email)
		if apperr.KindOf(err) == apperr.NotFound {
			return invalid
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			return invalid
		}
		v, err := findVerification(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if !v.OTPExpiry.Valid || !s.now().Before(v.OTPExpiry.Time) || !otpMatches(v.OTP, otp) {
			return invalid
		}

		event, err := eventlog.New("UserVerified", UserVerifiedEvent{ID: u.ID}, nil)
		if err != nil {
			return err
		}
		expected := u.Version
		u.IsVerified = true
		u.Version++
		u.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
		if err := updateVerification(ctx, tx, u, &verification{UserID: u.ID}, expected); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, tx, u.ID, aggregateType, expected, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user verified", zap.String("user_id", u.ID.String()))
	s.notify(ctx, notification.Message{
		To:   u.Email,
		Kind: notification.WelcomeVerified,
		Payload: map[string]interface{}{
			"first_name": u.FirstName,
			"login_url":  s.frontend + "/login",
		},
	})
	return u, nil
}

// ResendOTP replaces the pending code of an unverified account.
func (s *service) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !s.limiters.allow(email) {
		return apperr.New(apperr.RateLimited, "Too many attempts, try again later")
	}

	v, err := s.newVerification()
	if err != nil {
		return fmt.Errorf("failed to issue code: %w", err)
	}
	var u *User
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = findByEmail(ctx, tx, email)
		if apperr.KindOf(err) == apperr.NotFound || (err == nil && u.IsVerified) {
			return apperr.New(apperr.NotFound, "User not found or already verified")
		}
		if err != nil {
			return err
		}
		return s.reissue(ctx, tx, u, v)
	})
	if err != nil {
		return err
	}

	s.sendCode(ctx, u, v)
	return nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords fail
// identically; correct credentials of an unverified account are refused.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if !s.limiters.allow(email) {
		return nil, apperr.New(apperr.RateLimited, "Too many attempts, try again later")
	}

	invalid := apperr.New(apperr.Unauthorized, "Invalid credentials")

	u, err := findByEmail(ctx, s.db, email)
	if apperr.KindOf(err) == apperr.NotFound {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	cred, err := findCredential(ctx, s.db, u.ID)
	if err != nil {
		return nil, err
	}
	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, invalid
	}
	if !u.IsVerified {
		return nil, apperr.New(apperr.Forbidden, "Please verify your email first")
	}
	return u, nil
}

func (s *service) newVerification() (*verification, error) {
	code, err := newOTP()
	if err != nil {
		return nil, err
	}
	expiry := s.now().Add(otpTTL).UTC().Truncate(time.Microsecond)
	return &verification{OTP: code, OTPExpiry: sql.NullTime{Time: expiry, Valid: true}}, nil
}

// reissue stores a fresh code on an unverified account.
func (s *service) reissue(ctx context.Context, tx *sqlx.Tx, u *User, v *verification) error {
	event, err := eventlog.New("VerificationIssued", VerificationIssuedEvent{ID: u.ID, ExpiresAt: v.OTPExpiry.Time}, nil)
	if err != nil {
		return err
	}
	v.UserID = u.ID
	expected := u.Version
	u.Version++
	u.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
	if err := updateVerification(ctx, tx, u, v, expected); err != nil {
		return err
	}
	_, err = s.events.Append(ctx, tx, u.ID, aggregateType, expected, event)
	return err
}

func (s *service) sendCode(ctx context.Context, u *User, v *verification) {
	s.notify(ctx, notification.Message{
		To:   u.Email,
		Kind: notification.OTPVerification,
		Payload: map[string]interface{}{
			"first_name":         u.FirstName,
			"otp":                v.OTP,
			"expires_in_minutes": int(otpTTL / time.Minute),
		},
	})
}

func (s *service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		s.logger.Debug("no notifier configured, mail skipped", zap.String("kind", string(msg.Kind)))
		return
	}
	s.notifier.Notify(ctx, msg)
}

// GetUser retrieves a user by id.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

// SetAdmin grants or revokes moderation rights.
func (s *service) SetAdmin(ctx context.Context, email string, admin bool) (*User, error) {
	var u *User
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = findByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if u.IsAdmin == admin {
			return nil
		}

		event, err := eventlog.New("UserRoleChanged", UserRoleChangedEvent{ID: u.ID, IsAdmin: admin}, nil)
		if err != nil {
			return err
		}

		expected := u.Version
		u.IsAdmin = admin
		u.Version++
		u.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
		if err := updateRole(ctx, tx, u, expected); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, tx, u.ID, aggregateType, expected, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user role changed", zap.String("user_id", u.ID.String()), zap.Bool("is_admin", u.IsAdmin))
	return u, nil
}

// keyedLimiter keeps one token bucket per key.
type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute int) *keyedLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &keyedLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
