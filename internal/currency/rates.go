package currency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/noah-isme/storefront-api/internal/resilience"
)

// Rates maps currency codes to the amount of that currency one USD buys.
type Rates struct {
	Base      string             `json:"base"`
	Values    map[string]float64 `json:"values"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// RateSource fetches a USD-based exchange-rate table.
type RateSource interface {
	FetchRates(ctx context.Context) (Rates, error)
}

// HTTPRateSource reads rates from an exchange-rate API answering with a
// `{"result":"success","base_code":"USD","rates":{...}}` document.
type HTTPRateSource struct {
	URL    string
	APIKey string
	HTTP   *resilience.HTTPClient
	Now    func() time.Time
}

// FetchRates implements RateSource.
func (s HTTPRateSource) FetchRates(ctx context.Context) (Rates, error) {
	if strings.TrimSpace(s.URL) == "" {
		return Rates{}, errors.New("currency: rate source url not configured")
	}
	if s.HTTP == nil {
		return Rates{}, errors.New("currency: rate source http client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Rates{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return Rates{}, fmt.Errorf("currency: fetch rates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Rates{}, fmt.Errorf("currency: read rates: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("currency: fetch rates: unexpected status %d", resp.StatusCode)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return ParseRates(body, now())
}

// ParseRates extracts a USD-based rate table from an API payload.
func ParseRates(body []byte, fetchedAt time.Time) (Rates, error) {
	if !gjson.ValidBytes(body) {
		return Rates{}, errors.New("currency: rates payload is not valid json")
	}
	doc := gjson.ParseBytes(body)
	if result := doc.Get("result"); result.Exists() && result.String() != "success" {
		return Rates{}, fmt.Errorf("currency: rate provider reported %q: %s", result.String(), doc.Get("error-type").String())
	}
	base := strings.ToUpper(doc.Get("base_code").String())
	if base == "" {
		base = strings.ToUpper(doc.Get("base").String())
	}
	if base != "" && base != BaseCurrency {
		return Rates{}, fmt.Errorf("currency: rate table base is %s, want %s", base, BaseCurrency)
	}
	ratesNode := doc.Get("rates")
	if !ratesNode.IsObject() {
		return Rates{}, errors.New("currency: rates payload has no rates object")
	}
	values := make(map[string]float64)
	ratesNode.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number && value.Float() > 0 {
			values[strings.ToUpper(key.String())] = value.Float()
		}
		return true
	})
	if len(values) == 0 {
		return Rates{}, errors.New("currency: rates payload is empty")
	}
	return Rates{Base: BaseCurrency, Values: values, FetchedAt: fetchedAt.UTC()}, nil
}
