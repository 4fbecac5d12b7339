package security

import (
	"bytes"
	"io"
	"net/http"

	"github.com/noah-isme/storefront-api/internal/common"
)

// BodyLimit caps request payloads. Carts and format batches are small, so the
// body is buffered once and replayed to the handler with an exact length.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 before the handler runs when a body exceeds Max.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody || !carriesBody(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			rejectBody(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return
		}

		buf, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		_ = r.Body.Close()
		switch {
		case err != nil:
			rejectBody(w, http.StatusBadRequest, "invalid request body")
			return
		case int64(len(buf)) > b.Max:
			rejectBody(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func rejectBody(w http.ResponseWriter, status int, msg string) {
	common.JSON(w, status, map[string]any{"success": false, "error": msg})
}
