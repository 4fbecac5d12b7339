package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/resilience"
)

const maxFeedPages = 200

// FeedResult is one full read of the supplier feed.
type FeedResult struct {
	Items   []catalog.Item
	Skipped int
	Pages   int
}

// Feed reads the upstream supplier catalog.
type Feed interface {
	Fetch(ctx context.Context) (FeedResult, error)
}

// MerchizeFeed pages through the Merchize variant feed. Each page looks like
//
//	{"data":{"variants":[{"sku":"..","product_sku":"..",
//	  "tiers":{"tier_1":..,"tier_2":..,"tier_3":..},
//	  "shipping":{"us":{"base":..,"additional":..},"eu":{..},"row":{..}}}]},
//	 "next_cursor":".."}
type MerchizeFeed struct {
	URL    string
	APIKey string
	HTTP   *resilience.HTTPClient
}

// Fetch implements Feed.
func (f MerchizeFeed) Fetch(ctx context.Context) (FeedResult, error) {
	if strings.TrimSpace(f.URL) == "" {
		return FeedResult{}, errors.New("catalogsync: feed url not configured")
	}
	if f.HTTP == nil {
		return FeedResult{}, errors.New("catalogsync: feed http client not configured")
	}
	var out FeedResult
	cursor := ""
	for {
		if out.Pages >= maxFeedPages {
			return FeedResult{}, fmt.Errorf("catalogsync: feed exceeded %d pages", maxFeedPages)
		}
		body, err := f.page(ctx, cursor)
		if err != nil {
			return FeedResult{}, err
		}
		out.Pages++
		items, skipped, next, err := ParseFeedPage(body)
		if err != nil {
			return FeedResult{}, fmt.Errorf("catalogsync: page %d: %w", out.Pages, err)
		}
		out.Items = append(out.Items, items...)
		out.Skipped += skipped
		if next == "" || next == cursor {
			return out, nil
		}
		cursor = next
	}
}

func (f MerchizeFeed) page(ctx context.Context, cursor string) ([]byte, error) {
	target, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("catalogsync: parse feed url: %w", err)
	}
	if cursor != "" {
		q := target.Query()
		q.Set("cursor", cursor)
		target.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("X-API-Key", f.APIKey)
	}
	resp, err := f.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalogsync: fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("catalogsync: read feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalogsync: fetch feed: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// ParseFeedPage extracts catalog items from one feed page. Variants without a
// SKU or with unusable prices are skipped and counted.
func ParseFeedPage(body []byte) ([]catalog.Item, int, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, "", errors.New("feed page is not valid json")
	}
	doc := gjson.ParseBytes(body)
	variants := doc.Get("data.variants")
	if !variants.IsArray() {
		return nil, 0, "", errors.New("feed page has no data.variants array")
	}
	var (
		items   []catalog.Item
		skipped int
	)
	variants.ForEach(func(_, v gjson.Result) bool {
		it := catalog.Item{
			VariantSKU: strings.TrimSpace(v.Get("sku").String()),
			ProductSKU: strings.TrimSpace(v.Get("product_sku").String()),
			Tier1:      v.Get("tiers.tier_1").Float(),
			Tier2:      v.Get("tiers.tier_2").Float(),
			Tier3:      v.Get("tiers.tier_3").Float(),

			USBaseFee:        optionalFloat(v.Get("shipping.us.base")),
			USAdditionalFee:  optionalFloat(v.Get("shipping.us.additional")),
			EUBaseFee:        optionalFloat(v.Get("shipping.eu.base")),
			EUAdditionalFee:  optionalFloat(v.Get("shipping.eu.additional")),
			ROWBaseFee:       optionalFloat(v.Get("shipping.row.base")),
			ROWAdditionalFee: optionalFloat(v.Get("shipping.row.additional")),
		}
		if !v.Get("tiers.tier_2").Exists() {
			it.Tier2 = it.Tier1
		}
		if !v.Get("tiers.tier_3").Exists() {
			it.Tier3 = it.Tier2
		}
		if !v.Get("tiers.tier_1").Exists() || it.Validate() != nil {
			skipped++
			return true
		}
		items = append(items, it)
		return true
	})
	return items, skipped, doc.Get("next_cursor").String(), nil
}

// optionalFloat keeps null and absent fees nil so they are never read as zero.
func optionalFloat(r gjson.Result) *float64 {
	if !r.Exists() || r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}
