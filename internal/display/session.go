package display

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/storefront-api/internal/currency"
)

// State is the FX lifecycle of a shopper session.
type State string

const (
	StateNoFX      State = "no_fx"
	StateWarming   State = "warming"
	StateCached    State = "cached"
	StateStale     State = "stale"
	StateReWarming State = "rewarming"
)

// ErrSuperseded is returned by a warm whose country was replaced before it
// finished. Its result is discarded.
var ErrSuperseded = errors.New("display: fx warm superseded by a newer selection")

// Warmer resolves the multiplier for a destination.
type Warmer interface {
	DollarMultiplier(ctx context.Context, iso3 string) (currency.FX, error)
}

// Price is one display-ready amount. Loading is set while no trusted
// multiplier exists for the selected country; Text is empty then.
type Price struct {
	USDCents int64  `json:"usdCents"`
	Text     string `json:"text,omitempty"`
	Loading  bool   `json:"loading"`
}

// Session tracks the selected country and the multiplier trusted for it.
// Country and multiplier change together under one lock and every selection
// bumps a generation, so a warm started for an earlier country can never
// attach its multiplier to a later one.
type Session struct {
	warmer Warmer
	now    func() time.Time

	mu        sync.RWMutex
	gen       uint64
	state     State
	iso3      string
	fx        *currency.FX
	updatedAt time.Time
}

// NewSession returns a session with no FX state.
func NewSession(w Warmer) *Session {
	return &Session{warmer: w, now: time.Now, state: StateNoFX}
}

// Restore seeds the session from a cookie snapshot. Untrusted snapshots only
// carry the country forward.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.iso3 = snap.ISO3
	s.fx = nil
	s.state = StateNoFX
	if snap.Trusted() {
		fx := snap.Rate()
		s.fx = &fx
		s.state = StateCached
		s.updatedAt = time.UnixMilli(snap.UpdatedAt)
	}
}

// State returns the current lifecycle state and selected country.
func (s *Session) State() (State, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.iso3
}

// Select switches the session to iso3 and warms its multiplier. Any previous
// multiplier is dropped before the fetch starts so prices show as loading
// until the new one lands.
func (s *Session) Select(ctx context.Context, iso3 string) (currency.FX, error) {
	code := strings.ToUpper(strings.TrimSpace(iso3))

	s.mu.Lock()
	if s.iso3 == code && s.state == StateCached && s.fx != nil {
		fx := *s.fx
		s.mu.Unlock()
		return fx, nil
	}
	s.gen++
	gen := s.gen
	switch s.state {
	case StateCached, StateStale, StateReWarming:
		s.state = StateReWarming
	default:
		s.state = StateWarming
	}
	s.iso3 = code
	s.fx = nil
	s.mu.Unlock()

	fx, err := s.warmer.DollarMultiplier(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return currency.FX{}, ErrSuperseded
	}
	if err != nil {
		s.state = StateNoFX
		return currency.FX{}, err
	}
	s.fx = &fx
	s.state = StateCached
	s.updatedAt = s.now()
	return fx, nil
}

// Invalidate marks the cached multiplier stale. Prices load until the next
// Select.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.fx = nil
	if s.state == StateCached {
		s.state = StateStale
	}
}

// Price renders usdCents for the selected country, or a loading entry when
// no trusted multiplier exists yet.
func (s *Session) Price(usdCents int64) (Price, error) {
	s.mu.RLock()
	fx := s.fx
	s.mu.RUnlock()
	if fx == nil {
		return Price{USDCents: usdCents, Loading: true}, nil
	}
	text, err := currency.Format(usdCents, *fx)
	if err != nil {
		return Price{}, err
	}
	return Price{USDCents: usdCents, Text: text}, nil
}

// FX returns the trusted multiplier, if any.
func (s *Session) FX() (currency.FX, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fx == nil {
		return currency.FX{}, false
	}
	return *s.fx, true
}

// Snapshot returns the cookie form of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{V: SnapshotVersion, ISO3: s.iso3, UpdatedAt: s.updatedAt.UnixMilli()}
	if s.fx != nil && !(s.iso3 == currency.DefaultCountry && s.fx.Currency == currency.BaseCurrency && s.fx.Multiplier == 1) {
		fx := *s.fx
		snap.FX = &fx
	}
	return snap
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
