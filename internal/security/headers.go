package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers sets response hardening headers. Price pages depend on the FX
// cookie, so they are served with VaryCookie to keep shared caches from
// mixing currencies between shoppers.
type Headers struct {
	Enable     bool
	EnableHSTS bool
	HSTSMaxAge int
	NoStore    bool
	VaryCookie bool
}

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Middleware writes the configured headers before the handler runs.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		switch {
		case h.NoStore:
			hdr.Set("Cache-Control", "no-store")
		case h.VaryCookie:
			hdr.Add("Vary", "Cookie")
			hdr.Set("Cache-Control", "private, max-age=0")
		}
		if h.EnableHSTS && secureRequest(r) {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = defaultHSTSMaxAge
			}
			hdr.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(maxAge)+"; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// secureRequest treats TLS terminated at a proxy as secure.
func secureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
