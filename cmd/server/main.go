// Command server runs the unified integration hub API and its webhook
// outbox processor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	eventapp "github.com/unihub/backend/internal/application/event"
	syncapp "github.com/unihub/backend/internal/application/unified"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/auth"
	"github.com/unihub/backend/internal/infrastructure/cache"
	"github.com/unihub/backend/internal/infrastructure/config"
	"github.com/unihub/backend/internal/infrastructure/connector"
	"github.com/unihub/backend/internal/infrastructure/event"
	"github.com/unihub/backend/internal/infrastructure/logger"
	"github.com/unihub/backend/internal/infrastructure/mapping"
	"github.com/unihub/backend/internal/infrastructure/persistence"
	"github.com/unihub/backend/internal/infrastructure/storage"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
	"github.com/unihub/backend/internal/infrastructure/webhook"
	"github.com/unihub/backend/internal/interfaces/http/handler"
	"github.com/unihub/backend/internal/interfaces/http/middleware"
	"github.com/unihub/backend/internal/interfaces/http/router"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "unihub:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()
	log = providers.BridgeLogger(log, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.StartProfiler(cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() { _ = profiler.Stop() }()
	if profiler.Enabled() {
		providers.EnableSpanProfiles()
	}

	log.Info("starting unihub",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(
		logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Database.SlowQuery),
	))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := providers.InstrumentDB(db.DB); err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	schemas, err := unified.NewTicketingRegistry()
	if err != nil {
		return fmt.Errorf("schema registry: %w", err)
	}
	catalog, err := mapping.NewCatalog(
		mapping.WithDir(cfg.Mapping.Dir),
		mapping.WithSchemas(schemas),
		mapping.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("mapping catalog: %w", err)
	}
	if cfg.Mapping.Watch && cfg.Mapping.Dir != "" {
		go func() {
			if err := catalog.Watch(ctx); err != nil {
				log.Error("mapping watcher stopped", zap.Error(err))
			}
		}()
	}

	records := persistence.NewGormRecordRepository(db.DB)
	connectors, err := newConnectorRegistry(cfg.Connectors, func(ctx context.Context, connectionID uuid.UUID) (int, error) {
		return records.HighestSequence(ctx, connectionID, connector.EchoIDPrefix)
	})
	if err != nil {
		return err
	}
	log.Info("connectors registered", zap.Strings("providers", connectors.Providers()))

	syncMetrics, err := telemetry.NewSyncMetrics(providers.Meter())
	if err != nil {
		return err
	}

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	uow := persistence.NewGormUnitOfWork(db.DB,
		event.NewOutboxPublisher(serializer, event.WithMaxRetries(cfg.Event.MaxRetries)),
		persistence.WithSnapshotOffload(blobs, cfg.Sync.SnapshotOffloadBytes),
	)

	engine := unified.NewEngine(schemas, catalog)
	orchestrator := syncapp.NewOrchestrator(uow, schemas, engine, connectors, log.Named("sync"),
		syncapp.WithSyncMetrics(syncMetrics))
	reader := syncapp.NewReader(uow, syncapp.ReaderConfig{
		DefaultLimit:      cfg.Reader.DefaultLimit,
		MaxLimit:          cfg.Reader.MaxLimit,
		EnrichConcurrency: cfg.Reader.EnrichConcurrency,
	}, syncMetrics, log.Named("reader"))
	overlays := syncapp.NewOverlayService(uow, schemas, log.Named("overlay"))

	outboxRepo := event.NewGormOutboxRepository(db.DB)
	deadLetters := eventapp.NewDeadLetterService(outboxRepo, log.Named("outbox"))

	processor, store, err := newOutboxProcessor(ctx, cfg, db, outboxRepo, serializer, syncMetrics, log)
	if err != nil {
		return err
	}
	if processor != nil {
		defer func() { _ = store.Close() }()
		if err := processor.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := processor.Stop(stopCtx); err != nil {
				log.Warn("outbox processor stop", zap.Error(err))
			}
		}()
	}

	httpMetrics, err := middleware.HTTPMetrics(providers.Meter())
	if err != nil {
		return err
	}
	routerCfg := router.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: middleware.DefaultCORSConfig().AllowMethods,
			AllowHeaders: middleware.DefaultCORSConfig().AllowHeaders,
		},
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tenant: middleware.TenantConfig{
			Validator: auth.NewJWTService(cfg.JWT),
			Required:  cfg.JWT.Required,
			Logger:    log,
		},
		Metrics:   httpMetrics,
		Profiling: profiler.Enabled(),
		Logger:    log,
	}
	if providers.Enabled() {
		routerCfg.TracerProvider = otel.GetTracerProvider()
	}

	health := handler.NewHealthHandler(version, map[string]handler.HealthCheck{
		"database": db.Ping,
	})
	ginEngine, err := router.NewRouter(routerCfg).
		Health(health.Health).
		Register(handler.NewRecordHandler(orchestrator, reader)).
		Register(handler.NewOverlayHandler(overlays)).
		Register(handler.NewOutboxHandler(deadLetters)).
		Engine()
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newBlobStore uses S3 when a bucket is configured and memory otherwise.
func newBlobStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (unified.BlobStore, error) {
	if cfg.Storage.Bucket == "" {
		if cfg.IsProduction() {
			// An in-memory store would lose every offloaded payload on restart.
			log.Warn("storage.bucket is empty; snapshot offload disabled, snapshots stay inline")
			return nil, nil
		}
		return storage.NewMemoryBlobStore(), nil
	}
	s3, err := storage.NewS3BlobStore(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("snapshot storage: %w", err)
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("snapshot storage: %w", err)
	}
	return s3, nil
}

func newConnectorRegistry(cfg config.ConnectorsConfig, seed connector.SequenceSeed) (*connector.Registry, error) {
	reg := connector.NewRegistry()
	for _, provider := range cfg.Echo {
		if err := reg.Register(connector.NewEchoConnector(provider, connector.WithSequenceSeed(seed))); err != nil {
			return nil, err
		}
	}
	for provider, settings := range cfg.REST {
		c, err := connector.NewRESTConnector(connector.RESTConfigFromSettings(provider, settings))
		if err != nil {
			return nil, fmt.Errorf("connector %s: %w", provider, err)
		}
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newOutboxProcessor subscribes the webhook fan-out behind the idempotency
// guard. It returns nils when the processor is disabled; the closer
// releases the idempotency store.
func newOutboxProcessor(
	ctx context.Context,
	cfg *config.Config,
	db *persistence.Database,
	repo *event.GormOutboxRepository,
	serializer *event.EventSerializer,
	metrics *telemetry.SyncMetrics,
	log *zap.Logger,
) (*event.OutboxProcessor, io.Closer, error) {
	if !cfg.Event.ProcessorEnabled {
		log.Info("outbox processor disabled")
		return nil, nil, nil
	}

	store, err := cache.NewIdempotencyStore(ctx, cfg.Redis,
		cache.WithLogger(log),
		cache.WithFallback(!cfg.IsProduction()),
	)
	if err != nil {
		return nil, nil, err
	}

	bus := event.NewInMemoryEventBus(log.Named("bus"))
	notifier := webhook.NewHTTPNotifier(persistence.NewGormWebhookEndpointRepository(db.DB), cfg.Webhook, log.Named("webhook"))
	bus.Subscribe(event.NewIdempotentHandler(
		syncapp.NewWebhookHandler(notifier, metrics, log.Named("webhook")),
		store,
		log,
		event.WithHandlerName("webhook"),
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
	))

	pcfg := event.DefaultOutboxProcessorConfig()
	pcfg.BatchSize = cfg.Event.BatchSize
	pcfg.PollInterval = cfg.Event.PollInterval
	pcfg.CleanupEnabled = cfg.Event.CleanupEnabled
	pcfg.CleanupRetention = cfg.Event.CleanupRetention
	pcfg.ClaimLease = cfg.Event.ClaimLease
	return event.NewOutboxProcessor(repo, bus, serializer, pcfg, log.Named("outbox")), store, nil
}
