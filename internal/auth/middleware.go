package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Cookie names used by login and the authentication middleware.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// PrincipalLoader resolves a user id into a principal.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*Principal, error)
}

// Middleware authenticates requests carrying a Bearer token or the access cookie.
// Requests without credentials continue anonymously; invalid credentials get 401.
type Middleware struct {
	tokens *TokenService
	users  PrincipalLoader
	log    zerolog.Logger
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(tokens *TokenService, users PrincipalLoader, log zerolog.Logger) *Middleware {
	return &Middleware{
		tokens: tokens,
		users:  users,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// Authenticate attaches the principal to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromHeader := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.ParseAccess(token)
		if err != nil {
			if !fromHeader {
				// A stale cookie should not lock the user out of login/refresh.
				next.ServeHTTP(w, r)
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}

		principal, err := m.users.LoadPrincipal(r.Context(), claims.UserID)
		if err != nil || principal == nil || !principal.IsActive {
			if err != nil {
				m.log.Debug().Err(err).Int64("user_id", claims.UserID).Msg("Token user could not be loaded")
			}
			writeAuthError(w, http.StatusUnauthorized, "User not found or inactive")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			writeAuthError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff rejects non-staff principals with 403.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := FromContext(r.Context())
		if p == nil {
			writeAuthError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		if !p.IsStaff && !p.IsSuperuser {
			writeAuthError(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaffForWrites lets any authenticated user read and restricts
// mutating methods to staff.
func RequireStaffForWrites(next http.Handler) http.Handler {
	staff := RequireStaff(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			staff.ServeHTTP(w, r)
		}
	})
}

func extractToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), true
		}
		return "", false
	}
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, false
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// IsInvalidToken reports whether err came from token validation.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
