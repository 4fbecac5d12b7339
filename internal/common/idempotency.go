package common

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. A key is
// claimed before the handler runs. Only a request that ends in a success
// status keeps it; rejected or failed requests release it so the caller may
// retry with the same key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(key string) string {
	return "idem:" + Sha256Hex(key)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := hashKey(r.URL.Path + ":" + header)
		ok, err := i.R.SetNX(ctx, key, "pending", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSON(w, http.StatusConflict, map[string]any{"ok": false, "error": "duplicate request", "code": "IDEMPOTENT_REPLAY"})
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		completed := false
		defer func() {
			release := context.WithoutCancel(ctx)
			if !completed || sw.status >= http.StatusBadRequest {
				_ = i.R.Del(release, key).Err()
				return
			}
			_ = i.R.Set(release, key, "done", i.ttl()).Err()
		}()
		next.ServeHTTP(sw, r)
		completed = true
	})
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}
