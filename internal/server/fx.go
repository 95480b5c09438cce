// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/api"
	"github.com/JakeFAU/ai-news-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/ai-news-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/ai-news-scraper/internal/logging"
	"github.com/JakeFAU/ai-news-scraper/internal/metrics"
	"github.com/JakeFAU/ai-news-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/ai-news-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/ai-news-scraper/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/ai-news-scraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/ai-news-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/ai-news-scraper/internal/run"
	"github.com/JakeFAU/ai-news-scraper/internal/schedule"
	"github.com/JakeFAU/ai-news-scraper/internal/scraper"
	"github.com/JakeFAU/ai-news-scraper/internal/source"
	gcsstorage "github.com/JakeFAU/ai-news-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ai-news-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/ai-news-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/ai-news-scraper/internal/storage/postgres"
	"github.com/JakeFAU/ai-news-scraper/internal/storage/sqlite"
	"github.com/JakeFAU/ai-news-scraper/internal/store"
)

// notifyTopic is the logical topic passed to the notification sink.
const notifyTopic = "scrape-runs"

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	registry        *source.Registry
	manager         *run.Manager
	progressHub     *progress.Hub
	scheduler       *schedule.Scheduler
	apiServer       *api.Server
	pgPool          *pgxpool.Pool
	sqliteStore     *sqlite.Store
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	metricsReg      prometheus.Registerer
}

// Option customizes Build.
type Option func(*App)

// WithLogger supplies a prebuilt logger instead of one derived from config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer registers run collectors on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.metricsReg = reg }
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Manager returns the run manager.
func (a *App) Manager() *run.Manager {
	return a.manager
}

// Progress returns the progress hub.
func (a *App) Progress() *progress.Hub {
	return a.progressHub
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run recovers interrupted runs, starts the scheduler and HTTP server, and
// blocks until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recovered, err := a.manager.Recover(ctx)
	if err != nil {
		a.logger.Error("run recovery failed", zap.Error(err))
	} else if recovered > 0 {
		a.logger.Warn("recovered interrupted runs", zap.Int("count", recovered))
	}

	a.scheduler.Start()
	a.logger.Info("scheduler started", zap.Int("entries", len(a.scheduler.Entries())))

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close stops the active run and releases infrastructure. Failures are
// logged and shutdown continues.
func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			a.logger.Warn("run manager shutdown failed", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.sqliteStore != nil {
		if err := a.sqliteStore.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
}

// ready backs /readyz.
func (a *App) ready(ctx context.Context) error {
	switch {
	case a.pgPool != nil:
		if err := a.pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	case a.sqliteStore != nil:
		return a.sqliteStore.Ping(ctx)
	}
	return nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	app := &App{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
		app.logger = logger
	}
	if app.metricsReg == nil {
		app.metricsReg = prometheus.DefaultRegisterer
	}
	metrics.Init()

	app.logger.Info("building application dependencies",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("raw", cfg.Raw.Backend),
	)

	app.registry = source.DefaultRegistry(source.Limits{
		DefaultMaxPages: cfg.Scraper.DefaultMaxPages,
		MaxRange:        cfg.Scraper.MaxRange,
		DefaultSource:   source.AIBase,
	})

	runs, articles, err := setupDatabase(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	raw, err := setupRawStore(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	if err := setupProgress(ctx, app, publisher); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	fetcher := setupFetcher(app, raw)

	app.manager, err = run.NewManager(run.Config{
		FetchTimeout:   cfg.Scraper.RequestTimeout,
		PersistTimeout: cfg.Scraper.PersistTimeout,
		Retry: scraper.NewExponentialRetryPolicy(
			cfg.Scraper.MaxRetries,
			cfg.Scraper.BackoffInitial(),
			cfg.Scraper.BackoffMax(),
		),
		Logger: app.logger.Named("run"),
	}, run.Deps{
		Registry: app.registry,
		Fetcher:  fetcher,
		Runs:     runs,
		Articles: articles,
		Emitter:  app.progressHub,
	})
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, fmt.Errorf("run manager init failed: %w", err)
	}

	if err := setupScheduler(app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.apiServer = api.NewServer(
		api.Config{
			AuthEnabled:    cfg.Auth.Enabled,
			APIKey:         cfg.Auth.APIKey,
			RequestTimeout: cfg.Server.RequestTimeout,
			PingInterval:   cfg.Server.WSPingInterval,
		},
		app.manager,
		app.registry,
		app.progressHub,
		app.logger.Named("api"),
		api.WithReadiness(app.ready),
	)

	return app, nil
}

func setupDatabase(ctx context.Context, app *App) (store.RunRepository, store.ArticleRepository, error) {
	switch app.cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Open(ctx, pgstore.Config{
			DSN:             app.cfg.Database.DSN,
			MaxConns:        app.cfg.Database.MaxConns,
			MinConns:        app.cfg.Database.MinConns,
			MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres init failed: %w", err)
		}
		app.pgPool = pool
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
		runs, err := pgstore.NewRunStore(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("run store init failed: %w", err)
		}
		articles, err := pgstore.NewArticleStore(pool)
		if err != nil {
			return nil, nil, fmt.Errorf("article store init failed: %w", err)
		}
		app.logger.Info("using postgres storage backend")
		return runs, articles, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, app.cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite init failed: %w", err)
		}
		app.sqliteStore = db
		app.logger.Info("using sqlite storage backend", zap.String("path", app.cfg.Storage.SQLite.Path))
		return db, db, nil
	default:
		app.logger.Warn("using in-memory storage backend; run history is lost on restart")
		return memorystorage.NewRunStore(), memorystorage.NewArticleStore(), nil
	}
}

func setupRawStore(ctx context.Context, app *App) (scraper.BlobStore, error) {
	switch app.cfg.Raw.Backend {
	case config.RawGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Raw.Bucket,
			Prefix: app.cfg.Raw.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving raw HTML to GCS", zap.String("bucket", app.cfg.Raw.Bucket))
		return blobStore, nil
	case config.RawLocal:
		blobStore, err := localstorage.New(app.cfg.Raw.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving raw HTML locally", zap.String("path", app.cfg.Raw.Local.BaseDir))
		return blobStore, nil
	case config.RawMemory:
		app.logger.Info("archiving raw HTML in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		app.logger.Debug("raw HTML archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (scraper.Publisher, error) {
	if !app.cfg.PubSub.Enabled() {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(ctx context.Context, app *App, publisher scraper.Publisher) error {
	pc := app.cfg.Progress
	sinkList := []progress.Sink{
		progresssinks.NewNotifySink(publisher, notifyTopic, app.logger.Named("progress_notify")),
	}
	if pc.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	if pc.MetricsEnabled {
		promSink, err := progresssinks.NewPrometheusSink(app.metricsReg)
		if err != nil {
			return fmt.Errorf("progress metrics sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added progress prometheus sink")
	}
	hubCfg := progress.Config{
		ObserverBuffer: pc.ObserverBuffer,
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.MaxBatchEvents,
		MaxBatchWait:   time.Duration(pc.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(pc.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("observer_buffer", hubCfg.ObserverBuffer),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
		zap.Int("sinks", len(sinkList)),
	)
	return nil
}

func setupFetcher(app *App, raw scraper.BlobStore) *collyfetcher.Fetcher {
	sc := app.cfg.Scraper
	opts := []collyfetcher.Option{
		collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   sc.RateLimit,
			DefaultBurst: sc.Burst,
		})),
		collyfetcher.WithLogger(app.logger.Named("fetcher")),
	}
	if raw != nil {
		opts = append(opts, collyfetcher.WithRawStore(raw))
	}
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", sc.UserAgent),
		zap.Float64("rate_limit", sc.RateLimit),
		zap.Int("burst", sc.Burst),
		zap.Duration("timeout", sc.RequestTimeout),
	)
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: sc.UserAgent,
		Timeout:   sc.RequestTimeout,
		BaseURLs:  sc.BaseURLs,
	}, app.registry, opts...)
}

func setupScheduler(app *App) error {
	app.scheduler = schedule.New(app.manager, app.logger)
	for _, sc := range app.cfg.Schedules {
		entry := schedule.Entry{
			Name: sc.Name,
			Spec: sc.Cron,
			Request: scraper.Request{
				ScrapeType:    scraper.ScrapeType(sc.ScrapeType),
				Source:        sc.Source,
				Mode:          scraper.Mode(sc.Mode),
				MaxPages:      sc.MaxPages,
				ForceRescrape: sc.ForceRescrape,
			},
		}
		if _, err := app.registry.Resolve(entry.Request); err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		if err := app.scheduler.Add(entry); err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
	}
	return nil
}
