// Package auth issues and verifies bearer tokens and carries the calling
// user through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
	"github.com/enggsatyamraj/rentify-backend/internal/web"
)

// Claims is the token payload. Subject holds the user id.
type Claims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Actor identifies the authenticated caller of a request.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the user.
func (i *Issuer) Issue(userID uuid.UUID, admin bool) (string, error) {
	now := i.now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Issuer:    "rentify",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses a token and returns the actor it names.
func (i *Issuer) Verify(token string) (Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, apperr.Wrap(apperr.Unauthorized, err, "Token expired")
		}
		return Actor{}, apperr.Wrap(apperr.Unauthorized, err, "Invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, apperr.Wrap(apperr.Unauthorized, err, "Invalid token")
	}
	return Actor{UserID: id, Admin: claims.Admin}, nil
}

type ctxKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the actor stored by Middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// Middleware rejects requests without a valid bearer token.
func (i *Issuer) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				web.Fail(w, logger, apperr.New(apperr.Unauthorized, "Not authorized, no token"))
				return
			}
			actor, err := i.Verify(token)
			if err != nil {
				web.Fail(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin rejects actors whose token lacks the admin claim.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok || !actor.Admin {
				web.Fail(w, logger, apperr.New(apperr.Forbidden, "Admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
