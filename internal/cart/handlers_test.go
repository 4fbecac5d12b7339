package cart_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

func ptr(v float64) *float64 { return &v }

func newHandler(t *testing.T) *cart.Handler {
	t.Helper()
	ix, err := catalog.NewIndex([]catalog.Item{
		{
			VariantSKU: "TEE-S", ProductSKU: "TEE", Tier1: 10, Tier2: 8, Tier3: 6,
			USBaseFee: ptr(5), USAdditionalFee: ptr(2),
			EUBaseFee: ptr(7), EUAdditionalFee: ptr(3),
		},
	})
	require.NoError(t, err)
	resolver, err := shipping.NewResolver(shipping.StaticSource{
		{ISO2: "US", ISO3: "USA", Name: "United States", Currency: "USD", Merchize: true, Printful: true, Both: true},
		{ISO2: "DE", ISO3: "DEU", Name: "Germany", Currency: "EUR", Merchize: false, Printful: true},
		{ISO2: "BR", ISO3: "BRA", Name: "Brazil", Currency: "BRL", Merchize: true},
	})
	require.NoError(t, err)
	calc := pricing.NewCalculator(catalog.NewStaticService(ix), resolver, pricing.DefaultTierPolicy)
	return &cart.Handler{Calc: pricing.Memoized{Calc: calc}, DefaultSupplier: shipping.SupplierMerchize}
}

func post(t *testing.T, h *cart.Handler, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/shop/cart/shipping-estimate", strings.NewReader(body))
	pricing.MemoMiddleware(http.HandlerFunc(h.ShippingEstimate)).ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestShippingEstimateSuccess(t *testing.T) {
	h := newHandler(t)
	status, body := post(t, h, `{"cart":[{"variant_sku":"TEE-S","quantity":3,"unit_price":10}],"countryIso3":"USA","stateIso2":"CA"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	totals := body["totals"].(map[string]any)
	require.Equal(t, 30.0, totals["retailPriceTotalNum"])
	require.Equal(t, 9.0, totals["shippingPriceNum"])
	require.Equal(t, "USD", totals["currency"])
	require.Equal(t, "$", totals["currency_symbol"])
	require.NotContains(t, totals, "RetailCents")
}

func TestShippingEstimateRejectsMalformedInput(t *testing.T) {
	h := newHandler(t)
	for _, payload := range []string{
		`{`,
		`{"cart":[],"countryIso3":"USA"}`,
		`{"cart":[{"variant_sku":"TEE-S","quantity":1}],"countryIso3":"US"}`,
		`{"cart":[{"variant_sku":"TEE-S","quantity":0}],"countryIso3":"USA"}`,
		`{"cart":[{"variant_sku":"TEE-S","quantity":1}],"countryIso3":"USA","supplier":"gelato"}`,
	} {
		status, body := post(t, h, payload)
		require.Equal(t, http.StatusBadRequest, status, payload)
		require.Equal(t, false, body["success"])
		require.NotEmpty(t, body["error"])
	}
}

func TestShippingEstimateUnsupportedDestination(t *testing.T) {
	h := newHandler(t)
	status, body := post(t, h, `{"cart":[{"variant_sku":"TEE-S","quantity":1}],"countryIso3":"DEU"}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, false, body["success"])
	require.Equal(t, "DESTINATION_UNSUPPORTED", body["code"])
	require.NotContains(t, body, "totals")
}

func TestShippingEstimateSystemFailures(t *testing.T) {
	h := newHandler(t)

	status, body := post(t, h, `{"cart":[{"variant_sku":"GHOST","quantity":1}],"countryIso3":"USA"}`)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["error"], "partial catalog")

	// BRA resolves to the ROW bucket, which the item does not quote.
	status, body = post(t, h, `{"cart":[{"variant_sku":"TEE-S","quantity":1}],"countryIso3":"BRA"}`)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body["error"], "shipping fee missing")
}
