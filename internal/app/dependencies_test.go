package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

const (
	catalogFixture = `[
  {"variant_sku":"TEE-BLK-M","product_sku":"TEE","tier_1":10,"tier_2":8,"tier_3":6,
   "us_base_fee":4.5,"us_additional_fee":1.5,"eu_base_fee":6,"eu_additional_fee":2,"row_base_fee":null,"row_additional_fee":null}
]`
	shippingFixture = `[
  {"iso2":"US","iso3":"USA","name":"United States","currency":"USD","merchize":true,"printful":true,"both":true},
  {"iso2":"DE","iso3":"DEU","name":"Germany","currency":"EUR","merchize":true,"printful":true,"both":true}
]`
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.json")
	shippingPath := filepath.Join(dir, "shipping.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogFixture), 0o600))
	require.NoError(t, os.WriteFile(shippingPath, []byte(shippingFixture), 0o600))
	return &config.Config{
		RedisURL:             "redis://" + mr.Addr(),
		CatalogSource:        "file",
		CatalogPath:          catalogPath,
		CatalogDBPath:        filepath.Join(dir, "catalog.db"),
		ShippingSupportPath:  shippingPath,
		DefaultSupplier:      "merchize",
		Tier2MinQty:          10,
		Tier3MinQty:          50,
		FXBaseURL:            "http://127.0.0.1:0/latest/USD",
		FXCacheTTL:           time.Hour,
		FXTimeout:            time.Second,
		CatalogSyncLockTTL:   time.Minute,
		CatalogSyncTimeout:   time.Minute,
		CircuitFXMinReq:      5,
		CircuitFXFailureRate: 0.5,
		CircuitFXOpenFor:     time.Second,
		RetryBase:            time.Millisecond,
		RetryMaxAttempts:     1,
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBuildWiresPricingPipeline(t *testing.T) {
	mr, client := newRedis(t)
	deps, err := Build(testConfig(t, mr), zerolog.Nop(), client)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	ctx := context.Background()
	require.NoError(t, deps.PingRedis(ctx, time.Second))
	require.NoError(t, deps.CheckDatasets(ctx, time.Second))
	require.True(t, deps.Catalog.Loaded())
	require.True(t, deps.Shipping.Loaded())

	totals, err := deps.Calculator.ComputeTotals(ctx, []pricing.CartVariant{{VariantSKU: "TEE-BLK-M", Quantity: 2}}, "USA", shipping.SupplierMerchize, pricing.Options{})
	require.NoError(t, err)
	require.Equal(t, 20.0, totals.RetailPriceTotalNum)
	require.Equal(t, 6.0, totals.ShippingPriceNum)

	fx, err := deps.FX.DollarMultiplier(ctx, "USA")
	require.NoError(t, err)
	require.Equal(t, 1.0, fx.Multiplier)

	require.Equal(t, "merchize", deps.SyncJob.Supplier)
	require.Nil(t, deps.SyncJob.Store)
	require.Equal(t, deps.Config.CatalogPath, deps.SyncJob.FilePath)
}

func TestBuildUsesSQLiteStore(t *testing.T) {
	mr, client := newRedis(t)
	cfg := testConfig(t, mr)
	cfg.CatalogSource = "sqlite"

	deps, err := Build(cfg, zerolog.Nop(), client)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.NotNil(t, deps.CatalogStore)
	require.NotNil(t, deps.SyncJob.Store)
	require.Empty(t, deps.SyncJob.FilePath)
}

func TestPingRedisFailsWhenDown(t *testing.T) {
	mr, client := newRedis(t)
	deps, err := Build(testConfig(t, mr), zerolog.Nop(), client)
	require.NoError(t, err)

	mr.Close()
	require.Error(t, deps.PingRedis(context.Background(), 200*time.Millisecond))
}

func TestNewLimiterParsesRate(t *testing.T) {
	_, client := newRedis(t)
	store, err := NewLimiterStore(client, "test:limiter")
	require.NoError(t, err)

	lim, err := NewLimiter(store, "2-H")
	require.NoError(t, err)
	require.Equal(t, int64(2), lim.Rate.Limit)
	require.Equal(t, time.Hour, lim.Rate.Period)

	ctx := context.Background()
	first, err := lim.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, first.Reached)
	_, err = lim.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	third, err := lim.Get(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, third.Reached)

	_, err = NewLimiter(store, "lots")
	require.Error(t, err)
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(nil, zerolog.Nop(), nil)
	require.Error(t, err)
}
