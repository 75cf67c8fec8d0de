package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/minerva/internal/auth"
)

// Authenticate returns middleware that places p on every request context,
// standing in for token authentication in handler tests.
func Authenticate(p *auth.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p != nil {
				r = r.WithContext(auth.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Staff is a staff principal without an employee link.
func Staff(userID int64) *auth.Principal {
	return &auth.Principal{UserID: userID, Email: "staff@example.com", IsActive: true, IsStaff: true}
}

// Superuser is a superuser principal without an employee link.
func Superuser(userID int64) *auth.Principal {
	return &auth.Principal{UserID: userID, Email: "admin@example.com", IsActive: true, IsStaff: true, IsSuperuser: true}
}

// DoJSON sends body encoded as JSON (nil sends no body) and records the response.
func DoJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// DecodeJSON decodes a recorded response body into dst.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
