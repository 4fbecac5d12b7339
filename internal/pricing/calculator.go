package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/currency"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// CartVariant is one cart line as owned by the cart store. UnitPrice is the
// display snapshot taken when the line was added and is never used for
// pricing.
type CartVariant struct {
	VariantSKU string  `json:"variant_sku" validate:"required,max=128"`
	Quantity   int     `json:"quantity" validate:"required,gt=0,lte=10000"`
	UnitPrice  float64 `json:"unit_price,omitempty" validate:"gte=0"`
}

// Totals is the priced order. Amounts are USD major units; Currency and
// CurrencySymbol describe the destination's display currency only.
type Totals struct {
	RetailPriceTotalNum float64 `json:"retailPriceTotalNum"`
	ShippingPriceNum    float64 `json:"shippingPriceNum"`
	Currency            string  `json:"currency"`
	CurrencySymbol      string  `json:"currency_symbol"`

	RetailCents   Money `json:"-"`
	ShippingCents Money `json:"-"`
}

// Options tunes a single ComputeTotals call.
type Options struct {
	// StateISO2 is the destination subdivision. It is carried for auditing and
	// does not affect the fee.
	StateISO2 string
	Tiers     *TierPolicy
}

// CatalogReader is the batched catalog lookup the calculator needs.
type CatalogReader interface {
	MultipleVariantsData(ctx context.Context, skus []string) ([]catalog.Item, error)
}

// SupportResolver answers shipping eligibility.
type SupportResolver interface {
	ResolveSupport(ctx context.Context, iso3 string, supplier shipping.Supplier) (shipping.Support, error)
}

// Calculator prices carts. It holds no per-call state and is safe for
// concurrent use.
type Calculator struct {
	Catalog  CatalogReader
	Shipping SupportResolver
	Tiers    TierPolicy
}

// NewCalculator wires a calculator with the default tier policy when tiers is
// not valid.
func NewCalculator(cat CatalogReader, ship SupportResolver, tiers TierPolicy) *Calculator {
	if !tiers.Valid() {
		tiers = DefaultTierPolicy
	}
	return &Calculator{Catalog: cat, Shipping: ship, Tiers: tiers}
}

// ComputeTotals prices cart for delivery to iso3 by supplier. The result is a
// pure function of its inputs and the resident datasets.
func (c *Calculator) ComputeTotals(ctx context.Context, cart []CartVariant, iso3 string, supplier shipping.Supplier, opts Options) (Totals, error) {
	ctx, span := obs.StartSpan(ctx, "pricing.ComputeTotals",
		attribute.String("pricing.supplier", string(supplier)),
		attribute.String("pricing.destination", iso3),
		attribute.Int("pricing.lines", len(cart)),
	)
	totals, err := c.computeTotals(ctx, cart, iso3, supplier, opts)
	result := resultLabel(err)
	span.SetAttributes(attribute.String("pricing.result", result))
	obs.IncPricingTotals(string(supplier), result)
	switch result {
	case "ok", "invalid", "unsupported":
		obs.EndSpan(span, nil)
	default:
		obs.EndSpan(span, err)
	}
	return totals, err
}

func (c *Calculator) computeTotals(ctx context.Context, cart []CartVariant, iso3 string, supplier shipping.Supplier, opts Options) (Totals, error) {
	logger := zerolog.Ctx(ctx)

	code, quantities, order, err := normalizeInput(cart, iso3, supplier, opts)
	if err != nil {
		return Totals{}, err
	}
	policy := c.tiers(opts)

	support, err := c.Shipping.ResolveSupport(ctx, code, supplier)
	if err != nil {
		return Totals{}, err
	}
	if !support.IsSupported || support.Country == nil {
		logger.Debug().Str("iso3", code).Str("supplier", string(supplier)).Msg("destination unsupported")
		return Totals{}, ErrDestinationUnsupported
	}

	items, err := c.Catalog.MultipleVariantsData(ctx, order)
	if err != nil {
		return Totals{}, err
	}
	if len(items) != len(order) {
		perr := partialCatalog(order, items)
		logger.Error().Strs("missing_skus", perr.Missing).Int("requested", perr.Requested).
			Int("resolved", perr.Resolved).Msg("cart references skus missing from catalog")
		return Totals{}, perr
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{Item: it, Qty: quantities[it.VariantSKU]})
	}

	region := support.Country.Region()
	fee, err := ShippingFee(lines, region, FeeModelFor(supplier))
	if err != nil {
		var missing *MissingFeeError
		if errors.As(err, &missing) {
			logger.Error().Str("sku", missing.SKU).Str("region", string(missing.Region)).
				Str("iso3", code).Msg("catalog has no shipping fee for region")
		}
		return Totals{}, err
	}
	subtotal := Subtotal(lines, policy)

	return Totals{
		RetailPriceTotalNum: Major(subtotal),
		ShippingPriceNum:    Major(fee),
		Currency:            support.Country.Currency,
		CurrencySymbol:      currency.Symbol(support.Country.Currency),
		RetailCents:         subtotal,
		ShippingCents:       fee,
	}, nil
}

func (c *Calculator) tiers(opts Options) TierPolicy {
	if opts.Tiers != nil && opts.Tiers.Valid() {
		return *opts.Tiers
	}
	if c.Tiers.Valid() {
		return c.Tiers
	}
	return DefaultTierPolicy
}

// normalizeInput validates the request and folds duplicate lines into one
// cumulative quantity per SKU, keeping first-seen order.
func normalizeInput(cart []CartVariant, iso3 string, supplier shipping.Supplier, opts Options) (string, map[string]int, []string, error) {
	if len(cart) == 0 {
		return "", nil, nil, validationErr("cart is empty")
	}
	code := strings.ToUpper(strings.TrimSpace(iso3))
	if !shipping.IsISO3(code) {
		return "", nil, nil, validationErr("country must be an ISO-3 code, got %q", iso3)
	}
	if _, err := shipping.ParseSupplier(string(supplier)); err != nil {
		return "", nil, nil, validationErr("%v", err)
	}
	if state := strings.TrimSpace(opts.StateISO2); state != "" && len(state) != 2 {
		return "", nil, nil, validationErr("state must be an ISO-2 code, got %q", opts.StateISO2)
	}
	if opts.Tiers != nil && !opts.Tiers.Valid() {
		return "", nil, nil, validationErr("tier breakpoints must escalate")
	}

	quantities := make(map[string]int, len(cart))
	order := make([]string, 0, len(cart))
	for i, line := range cart {
		sku := strings.TrimSpace(line.VariantSKU)
		if sku == "" {
			return "", nil, nil, validationErr("line %d has no variant sku", i)
		}
		if line.Quantity <= 0 {
			return "", nil, nil, validationErr("line %d quantity must be positive", i)
		}
		if _, seen := quantities[sku]; !seen {
			order = append(order, sku)
		}
		quantities[sku] += line.Quantity
	}
	return code, quantities, order, nil
}

func partialCatalog(requested []string, resolved []catalog.Item) *PartialCatalogError {
	found := make(map[string]struct{}, len(resolved))
	for _, it := range resolved {
		found[it.VariantSKU] = struct{}{}
	}
	missing := make([]string, 0, len(requested)-len(resolved))
	for _, sku := range requested {
		if _, ok := found[sku]; !ok {
			missing = append(missing, sku)
		}
	}
	return &PartialCatalogError{Requested: len(requested), Resolved: len(resolved), Missing: missing}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrDestinationUnsupported):
		return "unsupported"
	case errors.Is(err, ErrPartialCatalog):
		return "partial_catalog"
	case errors.Is(err, ErrShippingFeeMissing):
		return "fee_missing"
	default:
		return "error"
	}
}
