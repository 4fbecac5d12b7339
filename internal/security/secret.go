package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-api/internal/common"
)

// SharedSecret guards machine-to-machine endpoints such as cron triggers.
// An empty Secret rejects every request.
type SharedSecret struct {
	Header string
	Secret string
}

// Middleware rejects requests whose header does not match the secret.
func (s SharedSecret) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Valid(r) {
			common.JSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Valid reports whether r carries the secret. Bearer tokens in the
// Authorization header are accepted too.
func (s SharedSecret) Valid(r *http.Request) bool {
	secret := strings.TrimSpace(s.Secret)
	if secret == "" {
		return false
	}
	header := s.Header
	if header == "" {
		header = "X-Cron-Secret"
	}
	got := strings.TrimSpace(r.Header.Get(header))
	if got == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
