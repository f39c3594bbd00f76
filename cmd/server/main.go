package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgesync/backend/internal/application/edgesync"
	"github.com/edgesync/backend/internal/application/outbox"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/cache"
	"github.com/edgesync/backend/internal/infrastructure/config"
	"github.com/edgesync/backend/internal/infrastructure/event"
	"github.com/edgesync/backend/internal/infrastructure/logger"
	"github.com/edgesync/backend/internal/infrastructure/migration"
	"github.com/edgesync/backend/internal/infrastructure/persistence"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/edgesync/backend/internal/infrastructure/uplink"
	"github.com/edgesync/backend/internal/interfaces/http/handler"
	"github.com/edgesync/backend/internal/interfaces/http/middleware"
	"github.com/edgesync/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	otelProviders, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.CollectorEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		SamplingRatio:  cfg.Telemetry.SamplingRatio,
		ExportInterval: cfg.Telemetry.MetricsInterval,
		ExportLogs:     cfg.Telemetry.LogsEnabled,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := otelProviders.Bridge(baseLog, logger.ParseLevel(cfg.Telemetry.LogsLevel))
	defer func() { _ = log.Sync() }()
	meter := otelProviders.Meter(telemetry.TracerName)

	log.Info("Starting edgesync",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("cache", cfg.Cache.Type),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh)),
	))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	dbInstr, err := telemetry.NewDBInstrumentation(meter, telemetry.DBConfig{
		TraceEnabled:       cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:             cfg.Database.DBName,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to create database instrumentation", zap.Error(err))
	}
	if err := db.DB.Use(dbInstr); err != nil {
		log.Fatal("Failed to register database instrumentation", zap.Error(err))
	}
	dbInstr.StartPoolStats(ctx)
	if err := migrateSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}
	sqlDB := db.SQL()

	// Redis is shared by the cache, the dedupe store and the stream sender
	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
	}
	factoryOpts := []cache.FactoryOption{cache.WithFactoryLogger(log)}
	if redisClient != nil {
		factoryOpts = append(factoryOpts, cache.WithRedisClient(redisClient))
	}
	cacheFactory := cache.NewFactory(cfg.Cache, cfg.Redis, factoryOpts...)

	// Outbox and metrics
	outboxRepo := persistence.NewGormOutboxRepository(db.DB)
	outboxService := outbox.NewService(outboxRepo, log)
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:          meter,
		Logger:         log,
		OutboxProvider: outboxService,
	})
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	syncMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)

	// Events
	bus := event.NewInMemoryEventBus(event.WithBusLogger(log))
	idempotencyStore, err := cacheFactory.NewIdempotencyStore(cfg.Sync.DedupeStore)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	idempotencyCfg := shared.IdempotencyConfig{TTL: cfg.Sync.DedupeTTL, Enabled: cfg.Sync.DedupeEnabled}

	// Repositories
	backend, err := cacheFactory.NewBackend()
	if err != nil {
		log.Fatal("Failed to create cache backend", zap.Error(err))
	}
	cacheOpts := []cache.VersionedCacheOption{cache.WithObserver(syncMetrics), cache.WithCacheLogger(log)}
	repoOpts := []persistence.RepositoryOption{
		persistence.WithEventPublisher(bus),
		persistence.WithRepositoryLogger(log),
	}
	cachedOpts := []persistence.CachedRepositoryOption{
		persistence.WithCountCache(cache.NewEntityCountCache(backend, cacheOpts...)),
		persistence.WithCachedRepositoryLogger(log),
	}
	assets := persistence.NewCachedAssetRepository(
		persistence.NewGormAssetRepository(db.DB, repoOpts...), backend, cacheOpts, cachedOpts...)
	customers := persistence.NewCachedCustomerRepository(
		persistence.NewGormCustomerRepository(db.DB, repoOpts...), backend, cacheOpts, cachedOpts...)
	views := persistence.NewCachedEntityViewRepository(
		persistence.NewGormEntityViewRepository(db.DB, repoOpts...), backend, cacheOpts, cachedOpts...)
	users := persistence.NewCachedUserRepository(
		persistence.NewGormUserRepository(db.DB, repoOpts...), backend, cacheOpts, cachedOpts...)

	// Processors
	locks, err := edgesync.NewLockRegistry(cfg.Sync.LockMode, cfg.Sync.LockShards, cfg.Sync.LockTimeout)
	if err != nil {
		log.Fatal("Failed to create lock registry", zap.Error(err))
	}
	executor := edgesync.NewExecutor(cfg.Sync.ExecutorWorkers,
		edgesync.WithExecutorLogger(log),
		edgesync.WithStageTimeout(cfg.Sync.StageTimeout),
	)
	emitter := edgesync.NewOutboxEmitter(outboxRepo,
		edgesync.WithEmitterLogger(log),
		edgesync.WithEmitterMetrics(syncMetrics),
	)
	bus.Subscribe(event.NewIdempotentHandler(
		edgesync.NewCredentialsRequestHandler(emitter, log),
		idempotencyStore,
		event.WithIdempotencyConfig(idempotencyCfg),
		event.WithHandlerLogger(log),
	))

	procOpts := []edgesync.Option{edgesync.WithLogger(log), edgesync.WithMetrics(syncMetrics)}
	lookup := edgesync.NewRepositoryLookup(assets, customers, views, users)
	dispatcher := edgesync.NewDispatcher(
		edgesync.NewAssetProcessor(assets, locks, emitter, executor, procOpts...),
		edgesync.NewCustomerProcessor(customers, locks, emitter, executor, procOpts...),
		edgesync.NewEntityViewProcessor(views, lookup, locks, emitter, executor, procOpts...),
		edgesync.NewUserProcessor(users, bus, locks, emitter, executor, procOpts...),
		edgesync.WithDispatchWorkers(cfg.Sync.DispatchWorkers),
		edgesync.WithIdempotencyStore(idempotencyStore, idempotencyCfg),
		edgesync.WithDispatcherLogger(log),
	)

	// Uplink delivery
	var uplinkProcessor *uplink.Processor
	if cfg.Event.ProcessorEnabled {
		uplinkProcessor = uplink.NewProcessor(outboxRepo, newSender(cfg, redisClient, log), uplink.ProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			MaxRetries:       cfg.Event.MaxRetries,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
			CleanupInterval:  time.Hour,
		}, uplink.WithProcessorLogger(log), uplink.WithProcessorMetrics(syncMetrics))
		if err := uplinkProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start uplink processor", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(cfg.Telemetry.ServiceName, "/api/v1/system/ping", "/api/v1/system/ready"),
		middleware.SpanEnricher(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		httpMetrics,
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	router.NewRouter(engine).Register(
		handler.NewEdgeHandler(dispatcher),
		handler.NewOutboxHandler(outboxService),
		handler.NewSystemHandler(sqlDB),
	).Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// in-flight follow-ups still write to the outbox
	executor.Wait()
	if uplinkProcessor != nil {
		if err := uplinkProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Uplink processor shutdown failed", zap.Error(err))
		}
	}
	syncMetrics.Stop()
	dbInstr.Stop()
	if err := backend.Close(); err != nil {
		log.Error("Cache backend close failed", zap.Error(err))
	}
	if err := cacheFactory.Close(); err != nil {
		log.Error("Cache factory close failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := db.Close(); err != nil {
		log.Error("Database close failed", zap.Error(err))
	}
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Telemetry shutdown failed", zap.Error(err))
	}
	baseLog.Info("Server exited")
}

// migrateSchema builds the sqlite schema from the models, or applies the
// embedded SQL migrations on postgres when auto_migrate is set.
func migrateSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		return db.AutoMigrate()
	}
	if !cfg.Database.AutoMigrate {
		return nil
	}
	// the migrator is not closed: closing it closes the pool
	m, err := migration.New(db.SQL(), log)
	if err != nil {
		return err
	}
	return m.Up()
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Type == "redis" ||
		(cfg.Sync.DedupeEnabled && cfg.Sync.DedupeStore == "redis") ||
		(cfg.Event.ProcessorEnabled && cfg.Event.Sender == "redis")
}

func newSender(cfg *config.Config, client *redis.Client, log *zap.Logger) uplink.Sender {
	if cfg.Event.Sender == "redis" && client != nil {
		return uplink.NewRedisStreamSender(client, cfg.Event.StreamPrefix, cfg.Event.StreamMaxLen)
	}
	return uplink.NewLogSender(log)
}
