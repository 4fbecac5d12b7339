package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/noah-isme/storefront-api/internal/app"
	"github.com/noah-isme/storefront-api/internal/cart"
	"github.com/noah-isme/storefront-api/internal/catalogsync"
	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/currency"
	"github.com/noah-isme/storefront-api/internal/display"
	"github.com/noah-isme/storefront-api/internal/health"
	"github.com/noah-isme/storefront-api/internal/obs"
	"github.com/noah-isme/storefront-api/internal/pricing"
	"github.com/noah-isme/storefront-api/internal/ratelimit"
	"github.com/noah-isme/storefront-api/internal/resilience"
	"github.com/noah-isme/storefront-api/internal/security"
	"github.com/noah-isme/storefront-api/internal/shipping"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	deps, err := app.Build(cfg, logger, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close catalog store")
		}
	}()
	if err := deps.Warm(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load datasets")
	}

	supplier, err := shipping.ParseSupplier(cfg.DefaultSupplier)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse default supplier")
	}

	cartHandler := &cart.Handler{
		Calc:            pricing.Memoized{Calc: deps.Calculator},
		Validate:        deps.Validator,
		DefaultSupplier: supplier,
	}
	currencyHandler := &currency.Handler{Svc: deps.FX}
	displayHandler := &display.Handler{
		Catalog:     deps.Catalog,
		Validate:    deps.Validator,
		Concurrency: envInt("DISPLAY_PRICE_CONCURRENCY", 8),
	}
	displayMiddleware := display.Middleware{
		Codec: display.CookieCodec{
			Name:     cfg.FXCookieName,
			MaxAge:   cfg.FXCookieMaxAge,
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
		},
		FX:          deps.FX,
		Countries:   deps.Shipping,
		WarmTimeout: cfg.FXTimeout,
	}

	taskClient := asynq.NewClientFromRedisClient(redisClient)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()
	syncHandler := &catalogsync.Handler{
		Runner: deps.SyncJob,
		Scheduler: &catalogsync.Scheduler{
			Client: taskClient,
			Queue:  cfg.CatalogRefreshQueue,
			Unique: cfg.CatalogSyncLockTTL,
		},
		Supplier: string(shipping.SupplierMerchize),
		Secret:   security.SharedSecret{Secret: cfg.CronSecret},
	}

	limiterStore, err := app.NewLimiterStore(redisClient, "storefront:limiter")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	jobsLimiter, err := app.NewLimiter(limiterStore, strconv.Itoa(cfg.RateLimitJobsPerHour)+"-H")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise jobs limiter")
	}
	jobsLimit := stdlib.NewMiddleware(jobsLimiter,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
			common.JSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "rate limit exceeded"})
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			logger.Error().Err(err).Msg("jobs limiter")
			common.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "rate limiter unavailable"})
		}),
	)
	estimateLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "storefront:rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("estimate"),
			Window: time.Minute,
			Max:    cfg.RateLimitEstimatePerMin,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("estimate rate limiter unavailable")
		},
	}

	idem := common.Idem{R: redisClient, TTL: cfg.CatalogSyncLockTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     true,
		EnableHSTS: cfg.IsProduction(),
		HSTSMaxAge: envInt("SECURE_HSTS_MAX_AGE", 31536000),
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Cron-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", !cfg.IsProduction()) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:        deps,
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		DatasetTimeout: envDurationMillis("HEALTH_READY_DATASET_TIMEOUT_MS", 1000),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Get("/currency/multiplier", currencyHandler.Multiplier)

	r.Route("/shop", func(s chi.Router) {
		// One totals memo per request for every shop render.
		s.Use(pricing.MemoMiddleware)
		s.With(estimateLimit.Middleware).
			Post("/cart/shipping-estimate", cartHandler.ShippingEstimate)
		s.With(security.Headers{Enable: true, VaryCookie: true}.Middleware, displayMiddleware.Handler).
			Get("/prices", displayHandler.Prices)
		s.Post("/prices/format", displayHandler.Format)
	})

	r.Route("/jobs", func(j chi.Router) {
		j.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
		j.Use(jobsLimit.Handler)
		j.With(syncHandler.Secret.Middleware, idem.Middleware).
			Post("/merchize-catalog-refresh", syncHandler.Refresh)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	health.SetReady(true)
	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
