// Package server builds the crawler's dependencies and runs the service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/api"
	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/clock"
	"github.com/JakeFAU/toolhub-crawler/internal/config"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/toolhub-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/toolhub-crawler/internal/hash/sha256"
	"github.com/JakeFAU/toolhub-crawler/internal/id/uuid"
	"github.com/JakeFAU/toolhub-crawler/internal/logging"
	"github.com/JakeFAU/toolhub-crawler/internal/metrics"
	"github.com/JakeFAU/toolhub-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/toolhub-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/toolhub-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/toolhub-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/toolhub-crawler/internal/scheduler"
	gcsstorage "github.com/JakeFAU/toolhub-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/toolhub-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/toolhub-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/toolhub-crawler/internal/storage/postgres"
	"github.com/JakeFAU/toolhub-crawler/internal/telemetry"
	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// metricsRegisterer receives the progress sink's collectors.
var metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *crawler.Engine
	inventory crawler.Inventory
	runs      crawler.RunStore
	targets   crawler.TargetStore
	apiServer *api.Server
	scheduler *scheduler.Scheduler

	progressHub     *progress.Hub
	pgStore         *pgstore.Store
	gcsStore        *gcsstorage.BlobStore
	pubsubPublisher *gcppublisher.Publisher
	tracerProvider  *sdktrace.TracerProvider
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Targets returns the crawl target store.
func (a *App) Targets() crawler.TargetStore {
	return a.targets
}

// Crawl runs one crawl over every registered target.
func (a *App) Crawl(ctx context.Context) (crawler.RunSummary, error) {
	return a.engine.RunAll(ctx)
}

// Run serves the HTTP API and the crawl schedule until ctx is canceled or
// the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		select {
		case <-a.scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			a.logger.Warn("scheduled crawl still running at shutdown")
		}
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)

	if cfg.Telemetry.Enabled {
		app.tracerProvider, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
	}

	recorder, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter, err := setupProgress(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := app.setupEngine(recorder, blobStore, publisher, emitter); err != nil {
		return nil, err
	}
	if err := seedTargets(ctx, app); err != nil {
		return nil, err
	}

	var ready api.Pinger
	if app.pgStore != nil {
		ready = app.pgStore
	}
	app.apiServer = api.NewServer(api.Deps{
		Runner:    app.engine,
		Runs:      app.runs,
		Inventory: app.inventory,
		Targets:   app.targets,
		Ready:     ready,
		Logger:    logger.Named("api"),
	}, cfg.Auth)

	if cfg.Schedule.Enabled {
		app.scheduler, err = scheduler.New(cfg.Schedule.Cron, app.engine, logger.Named("scheduler"))
		if err != nil {
			return nil, fmt.Errorf("scheduler init failed: %w", err)
		}
	}
	return app, nil
}

// setupStores picks Postgres when a DSN is configured and in-memory stores
// otherwise. The returned recorder receives run-level audit entries.
func setupStores(ctx context.Context, app *App) (audit.Recorder, error) {
	dbCfg := app.cfg.Database
	if dbCfg.DSN == "" {
		app.logger.Warn("No DSN specified for database, using in-memory stores")
		recorder := audit.NewMemoryLog()
		app.inventory = memorystorage.NewInventory(recorder)
		app.runs = memorystorage.NewRunStore()
		app.targets = memorystorage.NewTargetStore(recorder)
		return recorder, nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             dbCfg.DSN,
		MaxConns:        dbCfg.MaxConns,
		MinConns:        dbCfg.MinConns,
		MaxConnLifetime: dbCfg.MaxConnLifetime,
	}, app.logger.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	app.pgStore = store
	if dbCfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
		app.logger.Info("postgres schema applied")
	}
	app.inventory = store
	app.runs = store
	app.targets = store
	return store, nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	storageCfg := app.cfg.Storage
	switch storageCfg.Backend {
	case "gcs":
		app.logger.Info("using GCS archive backend", zap.String("bucket", storageCfg.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsStore, err = gcsstorage.New(client, gcsstorage.Config{
			Bucket: storageCfg.Bucket,
			Prefix: storageCfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return app.gcsStore, nil
	case "local":
		app.logger.Info("using local archive backend", zap.String("path", storageCfg.Local.BaseDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: storageCfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case "memory":
		app.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Info("raw document archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	psCfg := app.cfg.PubSub
	if psCfg.TopicName == "" || psCfg.ProjectID == "" {
		app.logger.Warn("No Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, psCfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(client, app.logger.Named("pubsub"))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", psCfg.ProjectID),
		zap.String("topic", psCfg.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	progressCfg := app.cfg.Progress
	if !progressCfg.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(metricsRegisterer)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{promSink}
	if progressCfg.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     progressCfg.BufferSize,
		MaxBatchEvents: progressCfg.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(progressCfg.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(progressCfg.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func (a *App) setupEngine(
	recorder audit.Recorder,
	blobStore crawler.BlobStore,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) error {
	cfg := a.cfg
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}, a.logger.Named("fetcher"))
	a.logger.Info("using colly fetcher", zap.String("user_agent", cfg.Crawler.UserAgent))

	languages := toolinfo.NewLanguageRegistry(cfg.Toolinfo.ExtraLanguages...)
	reconciler := crawler.NewReconciler(a.inventory, crawler.ReconcilerConfig{
		Origin:           crawler.OriginCrawler,
		DeleteOnNotFound: cfg.Crawler.DeleteOnNotFound,
	}, a.logger.Named("reconciler"))

	engine, err := crawler.NewEngine(crawler.EngineDeps{
		Fetcher:    fetcher,
		Normalizer: toolinfo.NewNormalizer(languages, a.logger.Named("normalizer")),
		Reconciler: reconciler,
		Runs:       a.runs,
		Targets:    a.targets,
		Blobs:      blobStore,
		Hasher:     sha256.New(),
		Publisher:  publisher,
		Progress:   emitter,
		Audit:      recorder,
		Clock:      clock.System{},
		IDs:        uuid.New(),
		Logger:     a.logger.Named("engine"),
	}, crawler.EngineConfig{
		DefaultLanguage: cfg.Toolinfo.DefaultLanguage,
		Actor:           cfg.Crawler.Actor,
		Topic:           cfg.PubSub.TopicName,
		ArchivePrefix:   cfg.Crawler.ArchivePrefix,
	})
	if err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}
	a.engine = engine
	return nil
}

// seedTargets registers configured targets that are not yet known.
func seedTargets(ctx context.Context, app *App) error {
	for _, url := range app.cfg.Crawler.SeedTargets {
		target, err := app.targets.AddTarget(ctx, crawler.Target{URL: url, Owner: "config"},
			crawler.Audit{Actor: app.cfg.Crawler.Actor, Comment: "seeded from configuration"})
		switch {
		case errors.Is(err, crawler.ErrTargetExists):
			continue
		case err != nil:
			return fmt.Errorf("seed target %s: %w", url, err)
		}
		app.logger.Info("seeded crawl target", zap.String("url", target.URL))
	}
	return nil
}
