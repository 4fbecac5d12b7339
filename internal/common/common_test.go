package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdemRejectsReplayedKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/jobs/merchize-catalog-refresh", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusAccepted, send("abc"))
	require.Equal(t, http.StatusConflict, send("abc"))
	require.Equal(t, http.StatusAccepted, send("def"))
	require.Equal(t, http.StatusAccepted, send(""))
	require.Equal(t, 3, calls)

	val, err := mr.Get("idem:" + Sha256Hex("/jobs/merchize-catalog-refresh:abc"))
	require.NoError(t, err)
	require.Equal(t, "done", val)
}

func TestIdemReleasesKeyAfterServerError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusInternalServerError
	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/jobs/merchize-catalog-refresh", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusInternalServerError, send())
	status = http.StatusOK
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusConflict, send())
}

func TestIdemReleasesKeyAfterRejection(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Cron-Secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	send := func(secret string) int {
		req := httptest.NewRequest(http.MethodPost, "/jobs/merchize-catalog-refresh", nil)
		req.Header.Set("Idempotency-Key", "nightly-0300")
		if secret != "" {
			req.Header.Set("X-Cron-Secret", secret)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, send(""))
	require.False(t, mr.Exists("idem:"+Sha256Hex("/jobs/merchize-catalog-refresh:nightly-0300")))
	require.Equal(t, http.StatusOK, send("s3cret"))
	require.Equal(t, http.StatusConflict, send("s3cret"))
}

func TestClientIPPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestSha256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sha256Hex(""))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Cents int `json:"cents"`
	}
	decode := func(body string) (payload, error) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/shop/prices/format", strings.NewReader(body))
		err := DecodeJSON(req, &p)
		return p, err
	}

	p, err := decode(`{"cents":4999}`)
	require.NoError(t, err)
	require.Equal(t, 4999, p.Cents)

	for _, body := range []string{``, `{"cents":`, `{"cents":1}{"cents":2}`, `{"cents":"x"}`} {
		_, err := decode(body)
		require.ErrorIs(t, err, ErrInvalidJSON, body)
	}
}

func TestClientIPSkipsInvalidHops(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::ffff:10.0.0.9]:443"
	req.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.4")
	require.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "10.0.0.9", ClientIP(req))
}
