package display

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/currency"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// Middleware attaches a warmed FX session to every request so the first
// render already carries a trusted multiplier. The cookie is client-writable,
// so a restored multiplier is only kept when its currency is the one the
// shipping dataset lists for the cookie's country. Without Countries only the
// default country's USD snapshot survives a restore.
type Middleware struct {
	Codec       CookieCodec
	FX          Warmer
	Countries   currency.CountryLookup
	WarmTimeout time.Duration
	Now         func() time.Time
}

// Handler wraps next.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := m.prepare(w, r)
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func (m Middleware) prepare(w http.ResponseWriter, r *http.Request) *Session {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	session := NewSession(m.FX)

	snap, ok := m.Codec.Read(r)
	if ok {
		session.Restore(snap)
		switch {
		case m.Codec.MaxAge > 0 && snap.Age(m.now()) > m.Codec.MaxAge:
			session.Invalidate()
		case !m.currencyMatches(ctx, snap):
			logger.Debug().Str("iso3", snap.ISO3).Str("currency", snap.Rate().Currency).
				Msg("fx cookie currency does not belong to its country; rewarming")
			session.Invalidate()
		}
	}

	requested := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
	if !shipping.IsISO3(requested) {
		requested = snap.ISO3
	}
	if !shipping.IsISO3(requested) {
		requested = currency.DefaultCountry
	}

	if state, iso3 := session.State(); state == StateCached && iso3 == requested {
		return session
	}

	warmCtx, cancel := context.WithTimeout(ctx, m.warmTimeout())
	defer cancel()
	if _, err := session.Select(warmCtx, requested); err != nil {
		if !errors.Is(err, ErrSuperseded) {
			logger.Warn().Err(err).Str("iso3", requested).Msg("fx warm failed; prices render as loading")
		}
		return session
	}
	if err := m.Codec.Write(w, session.Snapshot()); err != nil {
		logger.Warn().Err(err).Msg("write fx cookie")
	}
	return session
}

// currencyMatches reports whether a trusted snapshot's currency is the
// currency of its country. Untrusted snapshots carry no multiplier and pass.
func (m Middleware) currencyMatches(ctx context.Context, snap Snapshot) bool {
	if !snap.Trusted() {
		return true
	}
	code := snap.Rate().Currency
	if m.Countries == nil {
		return snap.ISO3 == currency.DefaultCountry && strings.EqualFold(code, currency.BaseCurrency)
	}
	country, found, err := m.Countries.Country(ctx, snap.ISO3)
	if err != nil || !found {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(country.Currency), code)
}

func (m Middleware) warmTimeout() time.Duration {
	if m.WarmTimeout <= 0 {
		return 3 * time.Second
	}
	return m.WarmTimeout
}

func (m Middleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
