package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enggsatyamraj/rentify-backend/internal/apperr"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("0123456789abcdef", time.Hour)
	id := uuid.New()

	token, err := issuer.Issue(id, true)
	require.NoError(t, err)

	actor, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, actor.UserID)
	assert.True(t, actor.Admin)
}

func TestVerifyRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewIssuer("0123456789abcdef", time.Hour)
	other := NewIssuer("fedcba9876543210", time.Hour)

	token, err := other.Issue(uuid.New(), false)
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err = issuer.Issue(uuid.New(), false)
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	assert.Equal(t, "Token expired", apperr.MessageOf(err))
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("0123456789abcdef", time.Hour)
	id := uuid.New()
	token, err := issuer.Issue(id, false)
	require.NoError(t, err)

	var seen Actor
	h := issuer.Middleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, seen.UserID)

	admin := RequireAdmin(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, req.WithContext(WithActor(req.Context(), seen)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
