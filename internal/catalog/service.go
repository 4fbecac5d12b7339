package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/storefront-api/internal/dataset"
)

// ErrNotFound is returned when a variant SKU is not in the catalog.
var ErrNotFound = errors.New("catalog: variant not found")

// Source loads the full set of catalog records.
type Source interface {
	LoadItems(ctx context.Context) ([]Item, error)
}

// FileSource reads the catalog from a JSON array file.
type FileSource struct {
	Path string
}

// LoadItems implements Source.
func (s FileSource) LoadItems(context.Context) ([]Item, error) {
	return dataset.ReadJSONArray[Item](s.Path)
}

// Service answers variant lookups from a resident, lazily built index.
type Service struct {
	snapshot *dataset.Lazy[*Index]
}

// NewService constructs a catalog service backed by src. Nothing is read
// until the first lookup.
func NewService(src Source) (*Service, error) {
	if src == nil {
		return nil, errors.New("catalog: source is required")
	}
	return &Service{snapshot: dataset.NewLazy(func(ctx context.Context) (*Index, error) {
		records, err := src.LoadItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: load: %w", err)
		}
		return NewIndex(records)
	})}, nil
}

// NewStaticService wraps an already built index. Useful for tests and tools.
func NewStaticService(ix *Index) *Service {
	lazy := dataset.NewLazy[*Index](nil)
	lazy.Replace(ix)
	return &Service{snapshot: lazy}
}

// Index returns the resident index, loading it on first use.
func (s *Service) Index(ctx context.Context) (*Index, error) {
	return s.snapshot.Get(ctx)
}

// VariantData returns the catalog record for sku or ErrNotFound.
func (s *Service) VariantData(ctx context.Context, sku string) (Item, error) {
	ix, err := s.Index(ctx)
	if err != nil {
		return Item{}, err
	}
	it, ok := ix.Lookup(sku)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, sku)
	}
	return it, nil
}

// MultipleVariantsData returns the records matching skus. Unknown SKUs are
// dropped, so a shorter result signals a partial catalog.
func (s *Service) MultipleVariantsData(ctx context.Context, skus []string) ([]Item, error) {
	ix, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	return ix.LookupMany(skus), nil
}

// Reload rebuilds the index from the source and swaps it in. On failure the
// previous index keeps serving.
func (s *Service) Reload(ctx context.Context) (int, error) {
	ix, err := s.snapshot.Reload(ctx)
	if err != nil {
		return 0, err
	}
	return ix.Len(), nil
}

// Loaded reports whether an index is resident.
func (s *Service) Loaded() bool {
	return s.snapshot.Loaded()
}
