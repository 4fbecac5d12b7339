package pricing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

func ptr(v float64) *float64 { return &v }

var testItems = []catalog.Item{
	{
		VariantSKU: "TEE-S", ProductSKU: "TEE", Tier1: 10, Tier2: 8, Tier3: 6,
		USBaseFee: ptr(5), USAdditionalFee: ptr(2),
		EUBaseFee: ptr(7), EUAdditionalFee: ptr(3),
		ROWBaseFee: ptr(9), ROWAdditionalFee: ptr(4),
	},
	{
		VariantSKU: "MUG-11", ProductSKU: "MUG", Tier1: 12, Tier2: 11, Tier3: 10,
		USBaseFee: ptr(6), USAdditionalFee: ptr(1),
		ROWBaseFee: ptr(8), ROWAdditionalFee: ptr(2.5),
	},
}

var testCountries = shipping.StaticSource{
	{ISO2: "US", ISO3: "USA", Name: "United States", Currency: "USD", Merchize: true, Printful: true, Both: true},
	{ISO2: "DE", ISO3: "DEU", Name: "Germany", Currency: "EUR", Merchize: true, Printful: true, Both: true},
	{ISO2: "FR", ISO3: "FRA", Name: "France", Currency: "EUR", Merchize: true},
	{ISO2: "BR", ISO3: "BRA", Name: "Brazil", Currency: "BRL", Printful: true},
}

type countingCatalog struct {
	inner pricing.CatalogReader
	calls atomic.Int32
}

func (c *countingCatalog) MultipleVariantsData(ctx context.Context, skus []string) ([]catalog.Item, error) {
	c.calls.Add(1)
	return c.inner.MultipleVariantsData(ctx, skus)
}

func newCalculator(t *testing.T) (*pricing.Calculator, *countingCatalog) {
	t.Helper()
	ix, err := catalog.NewIndex(testItems)
	require.NoError(t, err)
	cat := &countingCatalog{inner: catalog.NewStaticService(ix)}
	resolver, err := shipping.NewResolver(testCountries)
	require.NoError(t, err)
	return pricing.NewCalculator(cat, resolver, pricing.TierPolicy{}), cat
}

func TestComputeTotalsPerSKUFees(t *testing.T) {
	calc, _ := newCalculator(t)
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 3}, {VariantSKU: "MUG-11", Quantity: 2}}

	got, err := calc.ComputeTotals(context.Background(), cart, "usa", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, 54.0, got.RetailPriceTotalNum)
	// (5 + 2*2) + (6 + 1*1)
	require.Equal(t, 16.0, got.ShippingPriceNum)
	require.Equal(t, "USD", got.Currency)
	require.Equal(t, "$", got.CurrencySymbol)
}

func TestComputeTotalsPerShipmentFees(t *testing.T) {
	calc, _ := newCalculator(t)
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 3}, {VariantSKU: "MUG-11", Quantity: 2}}

	got, err := calc.ComputeTotals(context.Background(), cart, "USA", shipping.SupplierPrintful, pricing.Options{})
	require.NoError(t, err)
	// one base fee from the mug (6), then 1 extra mug and 3 tees as additional units
	require.Equal(t, 13.0, got.ShippingPriceNum)
	require.Equal(t, pricing.Money(1300), got.ShippingCents)
}

func TestComputeTotalsTierBreakpoints(t *testing.T) {
	calc, _ := newCalculator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cart []pricing.CartVariant
		want float64
	}{
		{"below tier 2", []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 9}}, 90},
		{"crosses into tier 2", []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 10}}, 80},
		{"cumulative across lines", []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 6}, {VariantSKU: "TEE-S", Quantity: 4}}, 80},
		{"tier 3", []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 50}}, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.ComputeTotals(ctx, tc.cart, "USA", shipping.SupplierMerchize, pricing.Options{})
			require.NoError(t, err)
			require.Equal(t, tc.want, got.RetailPriceTotalNum)
		})
	}

	custom := pricing.TierPolicy{Tier2MinQty: 3, Tier3MinQty: 5}
	got, err := calc.ComputeTotals(ctx, []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 3}}, "USA", shipping.SupplierMerchize, pricing.Options{Tiers: &custom})
	require.NoError(t, err)
	require.Equal(t, 24.0, got.RetailPriceTotalNum)
}

func TestComputeTotalsUnsupportedDestination(t *testing.T) {
	calc, _ := newCalculator(t)
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 1}}
	ctx := context.Background()

	_, err := calc.ComputeTotals(ctx, cart, "FRA", shipping.SupplierPrintful, pricing.Options{})
	require.ErrorIs(t, err, pricing.ErrDestinationUnsupported)

	_, err = calc.ComputeTotals(ctx, cart, "ATA", shipping.SupplierMerchize, pricing.Options{})
	require.ErrorIs(t, err, pricing.ErrDestinationUnsupported)

	// FRA has both=false but merchize ships there.
	got, err := calc.ComputeTotals(ctx, cart, "FRA", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, 7.0, got.ShippingPriceNum)
	require.Equal(t, "€", got.CurrencySymbol)
}

func TestComputeTotalsPartialCatalog(t *testing.T) {
	calc, _ := newCalculator(t)
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 1}, {VariantSKU: "GHOST", Quantity: 2}}

	_, err := calc.ComputeTotals(context.Background(), cart, "USA", shipping.SupplierMerchize, pricing.Options{})
	require.ErrorIs(t, err, pricing.ErrPartialCatalog)
	var perr *pricing.PartialCatalogError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, []string{"GHOST"}, perr.Missing)
	require.Equal(t, 2, perr.Requested)
	require.Equal(t, 1, perr.Resolved)
}

func TestComputeTotalsMissingFeeIsHardFailure(t *testing.T) {
	calc, _ := newCalculator(t)
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 1}, {VariantSKU: "MUG-11", Quantity: 1}}

	_, err := calc.ComputeTotals(context.Background(), cart, "DEU", shipping.SupplierMerchize, pricing.Options{})
	require.ErrorIs(t, err, pricing.ErrShippingFeeMissing)
	var ferr *pricing.MissingFeeError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, "MUG-11", ferr.SKU)
	require.Equal(t, catalog.RegionEU, ferr.Region)
}

func TestComputeTotalsValidation(t *testing.T) {
	calc, _ := newCalculator(t)
	ctx := context.Background()
	one := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 1}}

	cases := []struct {
		name     string
		cart     []pricing.CartVariant
		iso3     string
		supplier shipping.Supplier
		opts     pricing.Options
	}{
		{"empty cart", nil, "USA", shipping.SupplierMerchize, pricing.Options{}},
		{"iso2 country", one, "US", shipping.SupplierMerchize, pricing.Options{}},
		{"digits", one, "U5A", shipping.SupplierMerchize, pricing.Options{}},
		{"zero quantity", []pricing.CartVariant{{VariantSKU: "TEE-S"}}, "USA", shipping.SupplierMerchize, pricing.Options{}},
		{"blank sku", []pricing.CartVariant{{VariantSKU: " ", Quantity: 1}}, "USA", shipping.SupplierMerchize, pricing.Options{}},
		{"unknown supplier", one, "USA", shipping.Supplier("gelato"), pricing.Options{}},
		{"bad state", one, "USA", shipping.SupplierMerchize, pricing.Options{StateISO2: "CAL"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := calc.ComputeTotals(ctx, tc.cart, tc.iso3, tc.supplier, tc.opts)
			require.ErrorIs(t, err, pricing.ErrValidation)
		})
	}
}

func TestComputeTotalsIsIdempotentAndNonNegative(t *testing.T) {
	calc, _ := newCalculator(t)
	ctx := context.Background()
	for _, iso3 := range []string{"USA", "BRA"} {
		cart := []pricing.CartVariant{{VariantSKU: "MUG-11", Quantity: 4}, {VariantSKU: "TEE-S", Quantity: 12}}
		first, err := calc.ComputeTotals(ctx, cart, iso3, shipping.SupplierPrintful, pricing.Options{})
		require.NoError(t, err)
		second, err := calc.ComputeTotals(ctx, cart, iso3, shipping.SupplierPrintful, pricing.Options{})
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.GreaterOrEqual(t, first.RetailPriceTotalNum, 0.0)
		require.GreaterOrEqual(t, first.ShippingPriceNum, 0.0)
	}
}

func TestMemoizedComputesOncePerRequest(t *testing.T) {
	calc, cat := newCalculator(t)
	memo := pricing.Memoized{Calc: calc}
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 2}}

	ctx := pricing.WithMemo(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := memo.ComputeTotals(ctx, cart, "USA", shipping.SupplierMerchize, pricing.Options{})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), cat.calls.Load())

	_, err := memo.ComputeTotals(ctx, cart, "DEU", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, int32(2), cat.calls.Load())

	// a new request starts with an empty memo
	_, err = memo.ComputeTotals(pricing.WithMemo(context.Background()), cart, "USA", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, int32(3), cat.calls.Load())

	// without a memo every call computes
	_, err = memo.ComputeTotals(context.Background(), cart, "USA", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, int32(4), cat.calls.Load())
}

type explodingCatalog struct {
	entered chan struct{}
	release chan struct{}
}

func (c *explodingCatalog) MultipleVariantsData(context.Context, []string) ([]catalog.Item, error) {
	close(c.entered)
	<-c.release
	panic("catalog index corrupted")
}

func TestMemoizedWaitersSurviveComputationPanic(t *testing.T) {
	cat := &explodingCatalog{entered: make(chan struct{}), release: make(chan struct{})}
	resolver, err := shipping.NewResolver(testCountries)
	require.NoError(t, err)
	memo := pricing.Memoized{Calc: pricing.NewCalculator(cat, resolver, pricing.TierPolicy{})}
	cart := []pricing.CartVariant{{VariantSKU: "TEE-S", Quantity: 1}}
	ctx := pricing.WithMemo(context.Background())

	recovered := make(chan any, 1)
	go func() {
		defer func() { recovered <- recover() }()
		_, _ = memo.ComputeTotals(ctx, cart, "USA", shipping.SupplierMerchize, pricing.Options{})
	}()
	<-cat.entered

	waiterErr := make(chan error, 1)
	go func() {
		_, err := memo.ComputeTotals(ctx, cart, "USA", shipping.SupplierMerchize, pricing.Options{})
		waiterErr <- err
	}()

	close(cat.release)
	require.Equal(t, "catalog index corrupted", <-recovered)
	require.Error(t, <-waiterErr)
}

func TestMemoMiddlewareSharesTotalsWithinRender(t *testing.T) {
	calc, cat := newCalculator(t)
	memo := pricing.Memoized{Calc: calc}
	cart := []pricing.CartVariant{{VariantSKU: "MUG-11", Quantity: 3}}

	render := pricing.MemoMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := memo.ComputeTotals(r.Context(), cart, "BRA", shipping.SupplierPrintful, pricing.Options{})
		require.NoError(t, err)
		estimate, err := memo.ComputeTotals(r.Context(), cart, "BRA", shipping.SupplierPrintful, pricing.Options{})
		require.NoError(t, err)
		require.Equal(t, summary, estimate)
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		render.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop/cart", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	require.Equal(t, int32(2), cat.calls.Load())
}
