package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/catalog"
	"github.com/championcart/backend/internal/config"
	"github.com/championcart/backend/internal/ingest"
	"github.com/championcart/backend/internal/lock"
	"github.com/championcart/backend/internal/obs"
	"github.com/championcart/backend/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	if cfg.CatalogAPIURL == "" {
		logger.Fatal().Msg("CATALOG_API_URL is required for the worker")
	}

	exporter := cfg.Obs.TracingExporter
	if !cfg.Obs.TracingEnabled {
		exporter = "none"
	}
	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "championcart-worker",
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      exporter,
		Insecure:      cfg.Obs.OTLPInsecure,
		SamplingRatio: cfg.Obs.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisOpts, redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Store: catalog.NewRepository(pool),
		Cache: catalog.NewCache(redisClient, cfg.PriceCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	client, err := ingest.NewClient(ingest.ClientConfig{
		BaseURL: cfg.CatalogAPIURL,
		Token:   cfg.CatalogAPIToken,
		HTTP: resilience.HTTPClient{
			Client: ingest.NewInstrumentedHTTPClient(0),
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Target:       "catalog-api",
				MinRequests:  cfg.CircuitMinRequests,
				FailureRatio: cfg.CircuitFailureRatio,
				OpenFor:      cfg.CircuitOpenFor,
				Logger:       &logger,
			}),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.OutboundTimeout,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog api client")
	}

	refresher := &ingest.Refresher{
		Fetcher:   client,
		Catalog:   catalogService,
		Locker:    lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:   cfg.LockTTL,
		Retention: cfg.CatalogRetention,
	}

	connOpt := asynq.RedisClientOpt{
		Addr:      redisOpts.Addr,
		Username:  redisOpts.Username,
		Password:  redisOpts.Password,
		DB:        redisOpts.DB,
		TLSConfig: redisOpts.TLSConfig,
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{ingest.QueueCatalog: 1},
		BaseContext: func() context.Context { return logger.WithContext(context.Background()) },
		Logger:      asynqLogger{l: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(ingest.TypeCatalogRefresh, ingest.TaskHandler{Refresher: refresher})

	scheduler := asynq.NewScheduler(connOpt, &asynq.SchedulerOpts{Logger: asynqLogger{l: logger}})
	entries, err := ingest.RegisterSchedules(scheduler, cfg.CatalogRefreshCron, cfg.CatalogRefreshCity)
	if err != nil {
		logger.Fatal().Err(err).Msg("register refresh schedules")
	}
	logger.Info().Int("entries", len(entries)).Str("cron", cfg.CatalogRefreshCron).Strs("cities", cfg.CatalogRefreshCity).Msg("refresh schedules registered")

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if len(entries) > 0 {
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
	}

	var metricsSrv *http.Server
	if cfg.Obs.MetricsEnabled && cfg.WorkerMetricsAddr != "" {
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener")
			}
		}()
	}

	logger.Info().Msg("worker starting")
	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if len(entries) > 0 {
		scheduler.Shutdown()
	}
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "championcart-worker"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
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

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
