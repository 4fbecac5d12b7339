package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/catalog"
)

const catalogJSON = `[
  {"variant_sku":"TEE-BLK-M","product_sku":"TEE","tier_1":10,"tier_2":8,"tier_3":6,
   "us_base_fee":4.5,"us_additional_fee":1.5,"eu_base_fee":6,"eu_additional_fee":2,"row_base_fee":null,"row_additional_fee":null},
  {"variant_sku":"MUG-WHT","product_sku":"MUG","tier_1":7.25,"tier_2":6.5,"tier_3":5.75,
   "us_base_fee":5,"us_additional_fee":2,"eu_base_fee":7,"eu_additional_fee":3,"row_base_fee":9,"row_additional_fee":4}
]`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestServiceLookups(t *testing.T) {
	svc, err := catalog.NewService(catalog.FileSource{Path: writeCatalog(t, catalogJSON)})
	require.NoError(t, err)
	require.False(t, svc.Loaded())

	ctx := context.Background()
	item, err := svc.VariantData(ctx, "TEE-BLK-M")
	require.NoError(t, err)
	require.Equal(t, "TEE", item.ProductSKU)
	require.Equal(t, 8.0, item.Tier2)
	require.True(t, svc.Loaded())

	row := item.Fee(catalog.RegionROW)
	require.Nil(t, row.Base)
	require.False(t, row.Quoted())
	require.True(t, item.Fee(catalog.RegionUS).Quoted())

	_, err = svc.VariantData(ctx, "NOPE")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	items, err := svc.MultipleVariantsData(ctx, []string{"MUG-WHT", "NOPE", "TEE-BLK-M"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "MUG-WHT", items[0].VariantSKU)
	require.Equal(t, "TEE-BLK-M", items[1].VariantSKU)
}

func TestServiceSurfacesLoadErrors(t *testing.T) {
	svc, err := catalog.NewService(catalog.FileSource{Path: filepath.Join(t.TempDir(), "absent.json")})
	require.NoError(t, err)

	_, err = svc.VariantData(context.Background(), "TEE-BLK-M")
	require.Error(t, err)
	require.False(t, errors.Is(err, catalog.ErrNotFound))

	_, err = svc.MultipleVariantsData(context.Background(), []string{"TEE-BLK-M"})
	require.Error(t, err, "an unreadable catalog must not resolve to an empty result")
}

func TestNewIndexRejectsInvalidRecords(t *testing.T) {
	_, err := catalog.NewIndex([]catalog.Item{{VariantSKU: "A", Tier1: 1}, {VariantSKU: "A", Tier1: 2}})
	require.ErrorIs(t, err, catalog.ErrDuplicateSKU)

	_, err = catalog.NewIndex([]catalog.Item{{VariantSKU: "A", Tier1: -1}})
	require.Error(t, err)

	neg := -2.0
	_, err = catalog.NewIndex([]catalog.Item{{VariantSKU: "A", USBaseFee: &neg}})
	require.Error(t, err)

	_, err = catalog.NewIndex(nil)
	require.Error(t, err)
}

func TestServiceReloadSwapsIndex(t *testing.T) {
	path := writeCatalog(t, catalogJSON)
	svc, err := catalog.NewService(catalog.FileSource{Path: path})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.VariantData(ctx, "MUG-WHT")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[{"variant_sku":"CAP","tier_1":3,"tier_2":2,"tier_3":1}]`), 0o600))
	_, err = svc.VariantData(ctx, "CAP")
	require.ErrorIs(t, err, catalog.ErrNotFound, "resident index is not refreshed implicitly")

	n, err := svc.Reload(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = svc.VariantData(ctx, "CAP")
	require.NoError(t, err)
}
