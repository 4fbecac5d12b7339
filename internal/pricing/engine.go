package pricing

import (
	"math"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// Money represents a USD value stored in cents.
type Money = int64

// Cents converts a USD major-unit amount to cents, rounding half away from zero.
func Cents(major float64) Money {
	return Money(math.Round(major * 100))
}

// Major converts cents to USD major units.
func Major(cents Money) float64 {
	return float64(cents) / 100
}

// TierPolicy holds the cumulative-quantity breakpoints for tier pricing. A SKU
// whose cumulative quantity reaches Tier3MinQty is priced entirely at tier_3,
// otherwise reaching Tier2MinQty prices it at tier_2, else tier_1.
type TierPolicy struct {
	Tier2MinQty int
	Tier3MinQty int
}

// DefaultTierPolicy is used when no policy is configured.
var DefaultTierPolicy = TierPolicy{Tier2MinQty: 10, Tier3MinQty: 50}

// Valid reports whether the breakpoints escalate.
func (p TierPolicy) Valid() bool {
	return p.Tier2MinQty > 1 && p.Tier3MinQty > p.Tier2MinQty
}

// Tier returns the tier number (1..3) applicable to qty.
func (p TierPolicy) Tier(qty int) int {
	switch {
	case qty >= p.Tier3MinQty:
		return 3
	case qty >= p.Tier2MinQty:
		return 2
	default:
		return 1
	}
}

// UnitPrice returns the unit price in cents for a SKU ordered qty times in total.
func (p TierPolicy) UnitPrice(it catalog.Item, qty int) Money {
	switch p.Tier(qty) {
	case 3:
		return Cents(it.Tier3)
	case 2:
		return Cents(it.Tier2)
	default:
		return Cents(it.Tier1)
	}
}

// Line is one SKU with its cumulative quantity.
type Line struct {
	Item catalog.Item
	Qty  int
}

// Subtotal prices every line at its tier.
func Subtotal(lines []Line, policy TierPolicy) Money {
	var subtotal Money
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		subtotal += Money(l.Qty) * policy.UnitPrice(l.Item, l.Qty)
	}
	return subtotal
}

// FeeModel describes how a supplier composes shipping fees across SKUs.
type FeeModel int

const (
	// PerSKU charges a base fee for each distinct SKU and the additional-unit
	// fee for that SKU's remaining units.
	PerSKU FeeModel = iota
	// PerShipment charges one base fee for the whole shipment, taken from the
	// SKU with the highest base fee, and the additional-unit fee for every
	// other unit.
	PerShipment
)

// FeeModelFor returns the fee model of supplier.
func FeeModelFor(supplier shipping.Supplier) FeeModel {
	if supplier == shipping.SupplierPrintful {
		return PerShipment
	}
	return PerSKU
}

type quotedLine struct {
	sku        string
	qty        int
	base       Money
	additional Money
}

// ShippingFee composes the shipping fee for lines shipped to region. Any line
// without a quote for region fails the whole cart.
func ShippingFee(lines []Line, region catalog.Region, model FeeModel) (Money, error) {
	quoted := make([]quotedLine, 0, len(lines))
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		fee := l.Item.Fee(region)
		if !fee.Quoted() {
			return 0, &MissingFeeError{SKU: l.Item.VariantSKU, Region: region}
		}
		quoted = append(quoted, quotedLine{
			sku:        l.Item.VariantSKU,
			qty:        l.Qty,
			base:       Cents(*fee.Base),
			additional: Cents(*fee.Additional),
		})
	}
	if len(quoted) == 0 {
		return 0, nil
	}

	var total Money
	switch model {
	case PerShipment:
		lead := 0
		for i, q := range quoted {
			if q.base > quoted[lead].base {
				lead = i
			}
		}
		for i, q := range quoted {
			units := Money(q.qty)
			if i == lead {
				total += q.base
				units--
			}
			total += units * q.additional
		}
	default:
		for _, q := range quoted {
			total += q.base + Money(q.qty-1)*q.additional
		}
	}
	return total, nil
}
