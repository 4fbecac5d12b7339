package catalog

import (
	"errors"
	"fmt"
)

// ErrDuplicateSKU is returned when a dataset holds two records for one variant.
var ErrDuplicateSKU = errors.New("catalog: duplicate variant sku")

// Index is an immutable lookup of catalog items keyed by variant SKU. It is
// safe for unbounded concurrent readers.
type Index struct {
	items map[string]Item
}

// NewIndex validates records and builds an index. The input slice is copied.
func NewIndex(records []Item) (*Index, error) {
	if len(records) == 0 {
		return nil, errors.New("catalog: no records")
	}
	items := make(map[string]Item, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, exists := items[rec.VariantSKU]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSKU, rec.VariantSKU)
		}
		items[rec.VariantSKU] = rec
	}
	return &Index{items: items}, nil
}

// Lookup returns the item for sku.
func (ix *Index) Lookup(sku string) (Item, bool) {
	if ix == nil {
		return Item{}, false
	}
	it, ok := ix.items[sku]
	return it, ok
}

// LookupMany returns the items for skus in input order, silently dropping SKUs
// with no match. Duplicated SKUs are returned once.
func (ix *Index) LookupMany(skus []string) []Item {
	out := make([]Item, 0, len(skus))
	if ix == nil {
		return out
	}
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}
		if it, ok := ix.items[sku]; ok {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of indexed variants.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.items)
}
