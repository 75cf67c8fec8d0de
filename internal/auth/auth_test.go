package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens() *TokenService {
	return NewTokenService("test-secret-that-is-long-enough", time.Hour, 7*24*time.Hour, time.Hour)
}

func TestTokenService_PairRoundTrip(t *testing.T) {
	s := newTokens()
	pair, err := s.IssuePair(42)
	require.NoError(t, err)

	claims, err := s.ParseAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)

	_, err = s.ParseAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token must not authenticate requests")

	claims, err = s.ParseRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
}

func TestTokenService_RejectsExpiredAndForeignTokens(t *testing.T) {
	s := newTokens()
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := s.IssuePair(1)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenService("another-secret-entirely-different", time.Hour, time.Hour, time.Hour)
	fresh, err := other.IssuePair(1)
	require.NoError(t, err)
	_, err = s.ParseAccess(fresh.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_PasswordResetBoundToCredentials(t *testing.T) {
	s := newTokens()
	lastLogin := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := s.IssuePasswordReset(5, "hash-v1", lastLogin)
	require.NoError(t, err)

	claims, err := s.ParsePasswordReset(token, "hash-v1", lastLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.UserID)

	_, err = s.ParsePasswordReset(token, "hash-v2", lastLogin)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ParsePasswordReset(token, "hash-v1", lastLogin.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))

	generated, err := GeneratePassword(10)
	require.NoError(t, err)
	assert.Len(t, generated, 10)
	for _, r := range generated {
		assert.Contains(t, alphanumeric, string(r))
	}
}

func TestPasswordValidator(t *testing.T) {
	v, err := NewPasswordValidator("")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		problems int
	}{
		{"strong", "Orcamento#2025", 0},
		{"short", "aB3$", 1},
		{"common", "password1", 1},
		{"numeric", "98765432100", 1},
		{"similar to email", "joao.silva", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, v.Validate(tt.password, "joao.silva@example.com"), tt.problems)
		})
	}
}

type stubLoader map[int64]*Principal

func (s stubLoader) LoadPrincipal(_ context.Context, id int64) (*Principal, error) {
	p, ok := s[id]
	if !ok {
		return nil, errors.New("missing")
	}
	return p, nil
}

func TestMiddleware(t *testing.T) {
	tokens := newTokens()
	loader := stubLoader{
		1: {UserID: 1, Email: "a@example.com", IsActive: true},
		2: {UserID: 2, Email: "b@example.com", IsActive: false},
		3: {UserID: 3, Email: "c@example.com", IsActive: true, IsStaff: true},
	}
	mw := NewMiddleware(tokens, loader, zerolog.Nop())

	handler := mw.Authenticate(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(FromContext(r.Context()).Email))
	})))
	staffOnly := mw.Authenticate(RequireStaff(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	bearer := func(id int64) string {
		pair, err := tokens.IssuePair(id)
		require.NoError(t, err)
		return "Bearer " + pair.Access
	}

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(1))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "a@example.com", rec.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		pair, err := tokens.IssuePair(1)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: pair.Access})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("garbage bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(2))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("staff gate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(1))
		rec := httptest.NewRecorder()
		staffOnly.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", bearer(3))
		rec = httptest.NewRecorder()
		staffOnly.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
