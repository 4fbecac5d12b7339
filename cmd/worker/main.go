package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/app"
	"github.com/noah-isme/storefront-api/internal/catalogsync"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/resilience"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	deps, err := app.Build(cfg, logger, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close catalog store")
		}
	}()

	supplier := string(shipping.SupplierMerchize)
	jobs := catalogsync.Jobs{supplier: deps.SyncJob}

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Username: redisOpts.Username,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.CatalogRefreshQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: cfg.CatalogSyncTimeout,
	})
	mux := asynq.NewServeMux()
	mux.Handle(catalogsync.TypeCatalogRefresh, jobs)

	client := asynq.NewClientFromRedisClient(redisClient)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	scheduler := catalogsync.Scheduler{
		Client: client,
		Queue:  cfg.CatalogRefreshQueue,
		Unique: cfg.CatalogSyncLockTTL,
	}

	sched := cron.New(cron.WithLocation(time.UTC))
	if _, err := sched.AddFunc(cfg.CatalogRefreshCron, func() {
		enqueueCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		id, err := scheduler.Enqueue(enqueueCtx, supplier, "cron")
		switch {
		case errors.Is(err, catalogsync.ErrAlreadyRunning):
			logger.Info().Msg("catalog refresh already queued")
		case err != nil:
			logger.Error().Err(err).Msg("enqueue catalog refresh")
		default:
			logger.Info().Str("task_id", id).Msg("catalog refresh queued")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.CatalogRefreshCron).Msg("parse catalog refresh schedule")
	}
	sched.Start()

	logger.Info().Str("queue", cfg.CatalogRefreshQueue).Str("schedule", cfg.CatalogRefreshCron).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	<-sched.Stop().Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Options, *redis.Client) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisOpts, redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
