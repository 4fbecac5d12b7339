package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/storefront-api/internal/dataset"
)

// Support is the outcome of an eligibility lookup. Country is nil when the
// destination is not in the dataset.
type Support struct {
	Country     *Country
	IsSupported bool
}

// Source loads the shipping-support dataset.
type Source interface {
	LoadCountries(ctx context.Context) ([]Country, error)
}

// FileSource reads the dataset from a JSON array file.
type FileSource struct {
	Path string
}

// LoadCountries implements Source.
func (s FileSource) LoadCountries(context.Context) ([]Country, error) {
	return dataset.ReadJSONArray[Country](s.Path)
}

// StaticSource serves a fixed slice of countries.
type StaticSource []Country

// LoadCountries implements Source.
func (s StaticSource) LoadCountries(context.Context) ([]Country, error) {
	out := make([]Country, len(s))
	copy(out, s)
	return out, nil
}

type countryIndex map[string]Country

func newCountryIndex(records []Country) (countryIndex, error) {
	if len(records) == 0 {
		return nil, errors.New("shipping: no countries")
	}
	ix := make(countryIndex, len(records))
	for _, c := range records {
		code := strings.ToUpper(strings.TrimSpace(c.ISO3))
		if !IsISO3(code) {
			return nil, fmt.Errorf("shipping: invalid iso3 %q", c.ISO3)
		}
		if _, dup := ix[code]; dup {
			return nil, fmt.Errorf("shipping: duplicate iso3 %s", code)
		}
		c.ISO3 = code
		c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
		ix[code] = c
	}
	return ix, nil
}

// Resolver answers destination eligibility from a resident index.
type Resolver struct {
	snapshot *dataset.Lazy[countryIndex]
}

// NewResolver builds a resolver over src. The dataset is read on first use.
func NewResolver(src Source) (*Resolver, error) {
	if src == nil {
		return nil, errors.New("shipping: source is required")
	}
	return &Resolver{snapshot: dataset.NewLazy(func(ctx context.Context) (countryIndex, error) {
		records, err := src.LoadCountries(ctx)
		if err != nil {
			return nil, fmt.Errorf("shipping: load: %w", err)
		}
		return newCountryIndex(records)
	})}, nil
}

// Country returns the metadata for iso3 and whether it exists.
func (r *Resolver) Country(ctx context.Context, iso3 string) (Country, bool, error) {
	ix, err := r.snapshot.Get(ctx)
	if err != nil {
		return Country{}, false, err
	}
	c, ok := ix[strings.ToUpper(strings.TrimSpace(iso3))]
	return c, ok, nil
}

// ResolveSupport reports whether supplier ships to iso3. An unknown
// destination is an ordinary unsupported result, not an error; errors are
// reserved for dataset failures.
func (r *Resolver) ResolveSupport(ctx context.Context, iso3 string, supplier Supplier) (Support, error) {
	c, ok, err := r.Country(ctx, iso3)
	if err != nil {
		return Support{}, err
	}
	if !ok {
		return Support{}, nil
	}
	return Support{Country: &c, IsSupported: c.Ships(supplier)}, nil
}

// Loaded reports whether the dataset is resident.
func (r *Resolver) Loaded() bool {
	return r.snapshot.Loaded()
}

// Warm loads the dataset if it is not resident yet.
func (r *Resolver) Warm(ctx context.Context) error {
	_, err := r.snapshot.Get(ctx)
	return err
}
