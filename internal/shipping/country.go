package shipping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/storefront-api/internal/catalog"
)

// Supplier names a fulfilment partner.
type Supplier string

const (
	SupplierMerchize Supplier = "merchize"
	SupplierPrintful Supplier = "printful"
)

// ErrUnknownSupplier is returned for supplier names outside the known set.
var ErrUnknownSupplier = errors.New("shipping: unknown supplier")

// ParseSupplier normalises and validates a supplier name.
func ParseSupplier(raw string) (Supplier, error) {
	switch s := Supplier(strings.ToLower(strings.TrimSpace(raw))); s {
	case SupplierMerchize, SupplierPrintful:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSupplier, raw)
	}
}

// Country is the per-destination shipping and currency metadata.
type Country struct {
	ISO2     string `json:"iso2"`
	ISO3     string `json:"iso3"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Merchize bool   `json:"merchize"`
	Printful bool   `json:"printful"`
	// Both is informational; eligibility always reads the supplier flag.
	Both bool `json:"both"`
}

// Ships reports whether supplier delivers to the country.
func (c Country) Ships(supplier Supplier) bool {
	switch supplier {
	case SupplierMerchize:
		return c.Merchize
	case SupplierPrintful:
		return c.Printful
	default:
		return false
	}
}

// Region returns the shipping-fee bucket of the country.
func (c Country) Region() catalog.Region {
	return RegionFor(c.ISO3)
}

// euMembers lists the EU member states by ISO-3 code.
var euMembers = map[string]struct{}{
	"AUT": {}, "BEL": {}, "BGR": {}, "HRV": {}, "CYP": {}, "CZE": {}, "DNK": {},
	"EST": {}, "FIN": {}, "FRA": {}, "DEU": {}, "GRC": {}, "HUN": {}, "IRL": {},
	"ITA": {}, "LVA": {}, "LTU": {}, "LUX": {}, "MLT": {}, "NLD": {}, "POL": {},
	"PRT": {}, "ROU": {}, "SVK": {}, "SVN": {}, "ESP": {}, "SWE": {},
}

// RegionFor maps an ISO-3 code to exactly one shipping bucket: USA is US, EU
// member states are EU, and every other code is ROW.
func RegionFor(iso3 string) catalog.Region {
	code := strings.ToUpper(strings.TrimSpace(iso3))
	if code == "USA" {
		return catalog.RegionUS
	}
	if _, ok := euMembers[code]; ok {
		return catalog.RegionEU
	}
	return catalog.RegionROW
}

// IsISO3 reports whether code is three ASCII letters.
func IsISO3(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		c := code[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
