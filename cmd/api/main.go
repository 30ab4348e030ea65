package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/auth"
	"github.com/championcart/backend/internal/catalog"
	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/compare"
	"github.com/championcart/backend/internal/config"
	"github.com/championcart/backend/internal/health"
	"github.com/championcart/backend/internal/ingest"
	"github.com/championcart/backend/internal/obs"
	"github.com/championcart/backend/internal/ratelimit"
	"github.com/championcart/backend/internal/security"
)

// services bundles what the router needs.
type services struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	redis       *redis.Client
	catalog     *catalog.Handler
	compare     *compare.Handler
	refresh     ingest.AdminHandler
	tokens      *auth.Tokens
	globalLimit func(http.Handler) http.Handler
	httpMetrics *obs.HTTPMetrics
	tracing     bool
}

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing := false
	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "championcart-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			Insecure:      cfg.Obs.OTLPInsecure,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("tracing disabled")
		} else {
			tracing = true
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.AutoMigrate {
		if err := catalog.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := openPostgres(initCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()
	rdb, err := openRedis(initCtx, cfg.RedisURL, cfg.Obs.MetricsEnabled)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store: catalog.NewRepository(pool),
		Cache: catalog.NewCache(rdb, cfg.PriceCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog service")
	}

	var tokens *auth.Tokens
	if cfg.AdminEnabled() {
		tokens, err = auth.NewTokens(auth.TokensConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience})
		if err != nil {
			logger.Fatal().Err(err).Msg("admin tokens")
		}
	} else {
		logger.Warn().Msg("JWT_SECRET not set, admin endpoints disabled")
	}

	store, err := ratelimit.NewRedisStore(rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit store")
	}
	globalLimit, err := ratelimit.Global(store, cfg.GlobalRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("global rate limit")
	}

	taskClient := asynq.NewClientFromRedisClient(rdb)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	svc := services{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       rdb,
		catalog:     catalog.NewHandler(catalog.HandlerConfig{Service: catalogService}),
		compare:     compare.NewHandler(&compare.Service{Prices: catalogService}, cfg.CompareDefaultTopN),
		refresh:     ingest.AdminHandler{Queue: taskClient},
		tokens:      tokens,
		globalLimit: globalLimit,
		tracing:     tracing,
	}
	if cfg.Obs.MetricsEnabled {
		svc.httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func newRouter(s services) http.Handler {
	cfg := s.cfg
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, obs.RoutePatternMiddleware)
	if s.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Middleware)
	}
	r.Use(
		obs.RequestLogger{Logger: s.logger}.Middleware,
		security.Headers{HSTSMaxAge: cfg.Obs.HSTSMaxAge}.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins(),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}),
	)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Group(func(d chi.Router) {
			if cfg.Obs.PprofUser != "" {
				d.Use(middleware.BasicAuth("pprof", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPass}))
			}
			d.Mount("/debug", middleware.Profiler())
		})
	}

	probes := health.Handler{
		Checker:      health.Deps{DB: s.pool, Redis: s.redis},
		DBTimeout:    cfg.Obs.ReadyDBTimeout,
		RedisTimeout: cfg.Obs.ReadyRedisTimeout,
	}
	r.Get("/health/live", probes.Live)
	r.Get("/health/ready", probes.Ready)

	compareLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: s.redis, Prefix: "rl:"},
		Config:  ratelimit.Config{Scope: "compare", Key: ratelimit.ByClientIP("compare"), Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
	}
	idem := common.Idem{R: s.redis, TTL: cfg.IdempotencyTTL}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(s.globalLimit)
		v.Get("/stores", s.catalog.Stores)
		v.Get("/prices", s.catalog.Prices)

		v.Group(func(c chi.Router) {
			c.Use(security.BodyLimit{Max: cfg.CompareBodyLimit}.Middleware, compareLimit.Middleware)
			c.Post("/compare", s.compare.Compare)
			c.Post("/compare/breakdown", s.compare.Breakdown)
		})

		v.Route("/admin", func(a chi.Router) {
			a.Use(auth.Middleware{Tokens: s.tokens}.RequireAdmin)
			a.With(idem.Middleware).Post("/prices", s.catalog.Import)
			a.Post("/refresh", s.refresh.Refresh)
		})
	})
	return r
}

func openPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	pc.ConnConfig.Tracer = obs.PGXTracer{}
	pc.ConnConfig.RuntimeParams["application_name"] = "championcart-api"
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openRedis(ctx context.Context, url string, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		return nil, errors.Join(err, rdb.Close())
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			return nil, errors.Join(err, rdb.Close())
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(err, rdb.Close())
	}
	return rdb, nil
}
