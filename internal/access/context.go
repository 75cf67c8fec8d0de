package access

import (
	"context"
	"net/http"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
)

type scopeKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the request scope. Requests that never passed through
// the middleware get an empty scope.
func FromContext(ctx context.Context) *Scope {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok && s != nil {
		return s
	}
	return EmptyScope()
}

// Middleware resolves the scope of authenticated requests once and caches it
// on the context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p := auth.FromContext(req.Context())
		if p == nil {
			next.ServeHTTP(w, req)
			return
		}
		scope, err := r.Resolve(req.Context(), p)
		if err != nil {
			apiutil.WriteError(w, req, r.log, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithScope(req.Context(), scope)))
	})
}

// RequireFullScope rejects principals that cannot see every record.
func RequireFullScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !FromContext(req.Context()).All {
			apiutil.WriteDetail(w, http.StatusForbidden, "This feature requires access to the whole organization.")
			return
		}
		next.ServeHTTP(w, req)
	})
}
