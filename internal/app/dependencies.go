package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/storefront-api/internal/cache"
	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/catalogsync"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/currency"
	"github.com/noah-isme/storefront-api/internal/lock"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/resilience"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

// Dependencies holds the services shared by the API and worker processes.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Redis        *redis.Client
	Validator    *validator.Validate
	Catalog      *catalog.Service
	CatalogStore *catalog.Store
	Shipping     *shipping.Resolver
	FX           *currency.Service
	Calculator   *pricing.Calculator
	SyncJob      *catalogsync.Job
}

// Build wires the domain services from cfg. The datasets are not read until
// first use or Warm.
func Build(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	deps := &Dependencies{Config: cfg, Logger: logger, Redis: rdb, Validator: validator.New()}

	var src catalog.Source
	switch cfg.CatalogSource {
	case "sqlite":
		store, err := catalog.OpenStore(cfg.CatalogDBPath)
		if err != nil {
			return nil, fmt.Errorf("app: open catalog store: %w", err)
		}
		deps.CatalogStore = store
		src = store
	default:
		src = catalog.FileSource{Path: cfg.CatalogPath}
	}
	catalogSvc, err := catalog.NewService(src)
	if err != nil {
		return nil, err
	}
	deps.Catalog = catalogSvc

	resolver, err := shipping.NewResolver(shipping.FileSource{Path: cfg.ShippingSupportPath})
	if err != nil {
		return nil, err
	}
	deps.Shipping = resolver

	deps.FX = &currency.Service{
		Countries: resolver,
		Source: currency.HTTPRateSource{
			URL:    cfg.FXBaseURL,
			APIKey: cfg.FXAPIKey,
			HTTP:   deps.outboundClient("fx-provider", cfg.FXTimeout),
		},
		Cache:        cache.NewJSON(rdb, cfg.FXCacheTTL),
		FetchTimeout: cfg.FXTimeout,
		Logger:       &deps.Logger,
	}

	deps.Calculator = pricing.NewCalculator(catalogSvc, resolver, pricing.TierPolicy{
		Tier2MinQty: cfg.Tier2MinQty,
		Tier3MinQty: cfg.Tier3MinQty,
	})

	job := &catalogsync.Job{
		Supplier: string(shipping.SupplierMerchize),
		Feed: catalogsync.MerchizeFeed{
			URL:    cfg.MerchizeFeedURL,
			APIKey: cfg.MerchizeAPIKey,
			HTTP:   deps.outboundClient("merchize-feed", cfg.CatalogSyncTimeout),
		},
		Catalog: catalogSvc,
		Locker:  lock.Locker{R: rdb},
		LockTTL: cfg.CatalogSyncLockTTL,
		Timeout: cfg.CatalogSyncTimeout,
		Logger:  logger.With().Str("component", "catalogsync").Logger(),
	}
	if deps.CatalogStore != nil {
		job.Store = deps.CatalogStore
	} else {
		job.FilePath = cfg.CatalogPath
	}
	deps.SyncJob = job

	return deps, nil
}

func (d *Dependencies) outboundClient(target string, timeout time.Duration) *resilience.HTTPClient {
	cfg := d.Config
	client := resilience.NewHTTPClient(
		target,
		resilience.NewTracedClient(timeout),
		resilience.NewBreaker(cfg.CircuitFXMinReq, cfg.CircuitFXFailureRate, cfg.CircuitFXOpenFor),
		d.Logger,
	)
	client.BaseBackoff = cfg.RetryBase
	client.MaxAttempts = cfg.RetryMaxAttempts
	client.Jitter = cfg.RetryJitterPercent
	client.Timeout = timeout
	return client
}

// Warm loads both datasets so the first request does not pay for it.
func (d *Dependencies) Warm(ctx context.Context) error {
	if _, err := d.Catalog.Index(ctx); err != nil {
		return err
	}
	return d.Shipping.Warm(ctx)
}

// PingRedis implements health.Checker.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// CheckDatasets implements health.Checker.
func (d *Dependencies) CheckDatasets(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Warm(ctx)
}

// Close releases the catalog store.
func (d *Dependencies) Close() error {
	if d.CatalogStore != nil {
		return d.CatalogStore.Close()
	}
	return nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// NewLimiter builds a limiter from a formatted rate such as "12-H".
func NewLimiter(store limiter.Store, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("app: parse rate %q: %w", formatted, err)
	}
	return limiter.New(store, rate, limiter.WithTrustForwardHeader(true)), nil
}
