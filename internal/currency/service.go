package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/storefront-api/internal/cache"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// DefaultCountry is the only destination allowed to fall back to the
// identity multiplier.
const DefaultCountry = "USA"

var (
	// ErrInvalidCountry is returned for codes that are not ISO-3 shaped.
	ErrInvalidCountry = errors.New("currency: invalid country code")
	// ErrUnknownCountry is returned when the country has no metadata.
	ErrUnknownCountry = errors.New("currency: unknown country")
	// ErrRateUnavailable is returned when no multiplier can be trusted.
	ErrRateUnavailable = errors.New("currency: exchange rate unavailable")
)

// CountryLookup resolves destination metadata.
type CountryLookup interface {
	Country(ctx context.Context, iso3 string) (shipping.Country, bool, error)
}

// Service resolves USD multipliers for destination countries. Rate tables are
// cached in Redis for the cache TTL and concurrent misses share one fetch.
type Service struct {
	Countries    CountryLookup
	Source       RateSource
	Cache        *cache.JSON
	FetchTimeout time.Duration
	Logger       *zerolog.Logger

	group singleflight.Group
}

// DollarMultiplier returns the multiplier converting 1 USD into the currency
// of iso3. USA never needs a fetch; any other country without a trusted rate
// fails rather than guessing.
func (s *Service) DollarMultiplier(ctx context.Context, iso3 string) (FX, error) {
	code := strings.ToUpper(strings.TrimSpace(iso3))
	if !shipping.IsISO3(code) {
		return FX{}, fmt.Errorf("%w: %q", ErrInvalidCountry, iso3)
	}
	if code == DefaultCountry {
		return Identity(), nil
	}
	if s.Countries == nil {
		return FX{}, errors.New("currency: country lookup not configured")
	}
	country, ok, err := s.Countries.Country(ctx, code)
	if err != nil {
		return FX{}, fmt.Errorf("currency: resolve country: %w", err)
	}
	if !ok {
		return FX{}, fmt.Errorf("%w: %s", ErrUnknownCountry, code)
	}
	cur, err := NormalizeCode(country.Currency)
	if err != nil {
		return FX{}, err
	}
	if cur == BaseCurrency {
		return Identity(), nil
	}
	rates, err := s.rates(ctx)
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("iso3", code).Str("currency", cur).Msg("fx rates unavailable")
		return FX{}, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	mult, ok := rates.Values[cur]
	if !ok || mult <= 0 {
		return FX{}, fmt.Errorf("%w: no rate for %s", ErrRateUnavailable, cur)
	}
	return FX{Multiplier: mult, Currency: cur, CurrencySymbol: Symbol(cur)}, nil
}

func (s *Service) rates(ctx context.Context) (Rates, error) {
	key := cache.KeyFXRates(BaseCurrency)
	var cached Rates
	hit, err := s.Cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger(ctx).Warn().Err(err).Msg("fx cache read failed")
	}
	if hit && len(cached.Values) > 0 {
		obs.IncFXCache("hit")
		return cached, nil
	}
	obs.IncFXCache("miss")

	if s.Source == nil {
		return Rates{}, errors.New("rate source not configured")
	}
	ch := s.group.DoChan(key, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail
		// the callers sharing this fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout())
		defer cancel()
		fetchCtx, span := obs.StartSpan(fetchCtx, "currency.FetchRates")
		fresh, err := s.Source.FetchRates(fetchCtx)
		obs.EndSpan(span, err)
		if err != nil {
			obs.IncFXFetch("error")
			return Rates{}, err
		}
		obs.IncFXFetch("ok")
		if err := s.Cache.Set(fetchCtx, key, fresh); err != nil {
			s.logger(ctx).Warn().Err(err).Msg("fx cache write failed")
		}
		return fresh, nil
	})
	select {
	case <-ctx.Done():
		return Rates{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Rates{}, res.Err
		}
		return res.Val.(Rates), nil
	}
}

// Invalidate drops the cached rate table.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.Cache.Delete(ctx, cache.KeyFXRates(BaseCurrency))
}

func (s *Service) fetchTimeout() time.Duration {
	if s.FetchTimeout <= 0 {
		return 5 * time.Second
	}
	return s.FetchTimeout
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
