package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Region identifies one of the shipping-fee buckets quoted per catalog entry.
type Region string

const (
	RegionUS  Region = "US"
	RegionEU  Region = "EU"
	RegionROW Region = "ROW"
)

// Item is one variant's pricing record. Prices and fees are USD major units.
// A nil fee means the supplier does not quote shipping for that bucket.
type Item struct {
	VariantSKU string  `json:"variant_sku"`
	ProductSKU string  `json:"product_sku"`
	Tier1      float64 `json:"tier_1"`
	Tier2      float64 `json:"tier_2"`
	Tier3      float64 `json:"tier_3"`

	USBaseFee        *float64 `json:"us_base_fee"`
	USAdditionalFee  *float64 `json:"us_additional_fee"`
	EUBaseFee        *float64 `json:"eu_base_fee"`
	EUAdditionalFee  *float64 `json:"eu_additional_fee"`
	ROWBaseFee       *float64 `json:"row_base_fee"`
	ROWAdditionalFee *float64 `json:"row_additional_fee"`
}

// ShippingFee is the base and additional-unit fee for one region bucket.
type ShippingFee struct {
	Base       *float64
	Additional *float64
}

// Quoted reports whether both components are present.
func (f ShippingFee) Quoted() bool {
	return f.Base != nil && f.Additional != nil
}

// Fee returns the shipping fee pair for region.
func (it Item) Fee(region Region) ShippingFee {
	switch region {
	case RegionUS:
		return ShippingFee{Base: it.USBaseFee, Additional: it.USAdditionalFee}
	case RegionEU:
		return ShippingFee{Base: it.EUBaseFee, Additional: it.EUAdditionalFee}
	default:
		return ShippingFee{Base: it.ROWBaseFee, Additional: it.ROWAdditionalFee}
	}
}

// Validate checks the record invariants.
func (it Item) Validate() error {
	if strings.TrimSpace(it.VariantSKU) == "" {
		return errors.New("variant_sku is required")
	}
	for name, v := range map[string]float64{"tier_1": it.Tier1, "tier_2": it.Tier2, "tier_3": it.Tier3} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: %s must be a non-negative number", it.VariantSKU, name)
		}
	}
	for _, fee := range []*float64{it.USBaseFee, it.USAdditionalFee, it.EUBaseFee, it.EUAdditionalFee, it.ROWBaseFee, it.ROWAdditionalFee} {
		if fee != nil && (*fee < 0 || math.IsNaN(*fee) || math.IsInf(*fee, 0)) {
			return fmt.Errorf("%s: shipping fees must be non-negative", it.VariantSKU)
		}
	}
	return nil
}
