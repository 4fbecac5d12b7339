package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/storefront-api/internal/catalog"
)

var (
	// ErrValidation marks malformed input that never reaches pricing logic.
	ErrValidation = errors.New("pricing: invalid input")
	// ErrDestinationUnsupported is the expected outcome when the supplier does
	// not ship to the destination.
	ErrDestinationUnsupported = errors.New("pricing: destination unsupported")
	// ErrPartialCatalog marks a cart with SKUs the catalog does not know.
	ErrPartialCatalog = errors.New("pricing: partial catalog data")
	// ErrShippingFeeMissing marks a catalog entry with no quote for the
	// destination's region bucket.
	ErrShippingFeeMissing = errors.New("pricing: shipping fee missing")
)

// PartialCatalogError lists the SKUs that did not resolve.
type PartialCatalogError struct {
	Requested int
	Resolved  int
	Missing   []string
}

func (e *PartialCatalogError) Error() string {
	return fmt.Sprintf("pricing: partial catalog data: resolved %d of %d skus, missing %s",
		e.Resolved, e.Requested, strings.Join(e.Missing, ","))
}

// Is matches ErrPartialCatalog.
func (e *PartialCatalogError) Is(target error) bool {
	return target == ErrPartialCatalog
}

// MissingFeeError identifies the SKU and region with a null fee.
type MissingFeeError struct {
	SKU    string
	Region catalog.Region
}

func (e *MissingFeeError) Error() string {
	return fmt.Sprintf("pricing: shipping fee missing for %s in region %s", e.SKU, e.Region)
}

// Is matches ErrShippingFeeMissing.
func (e *MissingFeeError) Is(target error) bool {
	return target == ErrShippingFeeMissing
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
