// Package server provides the application container: it builds every
// dependency from configuration and hands out download services.
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
	"go.uber.org/zap"

	"github.com/JakeFAU/docresolver/internal/api"
	"github.com/JakeFAU/docresolver/internal/clock/system"
	"github.com/JakeFAU/docresolver/internal/config"
	"github.com/JakeFAU/docresolver/internal/document"
	"github.com/JakeFAU/docresolver/internal/download"
	collyfetcher "github.com/JakeFAU/docresolver/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/docresolver/internal/fetcher/headless"
	"github.com/JakeFAU/docresolver/internal/hash/sha256"
	"github.com/JakeFAU/docresolver/internal/headless/detector"
	"github.com/JakeFAU/docresolver/internal/id/uuid"
	"github.com/JakeFAU/docresolver/internal/mirror"
	"github.com/JakeFAU/docresolver/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/docresolver/internal/publisher/pubsub"
	"github.com/JakeFAU/docresolver/internal/resolver"
	gcsstorage "github.com/JakeFAU/docresolver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/docresolver/internal/storage/local"
	memorystorage "github.com/JakeFAU/docresolver/internal/storage/memory"
	pgstore "github.com/JakeFAU/docresolver/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	fetcher      *collyfetcher.Fetcher
	renderer     *headlessfetcher.Renderer
	mirrors      *mirror.Directory
	blobs        document.BlobStore
	ledger       *pgstore.ResolutionStore
	publisher    *gcppublisher.Publisher
	pubsubClient *pubsub.Client
	storage      *storage.Client
	service      *download.Service
}

// Option customizes Build.
type Option func(*App)

// WithBlobStore replaces the configured blob store.
func WithBlobStore(blobs document.BlobStore) Option {
	return func(a *App) { a.blobs = blobs }
}

// Build creates the application's dependencies. When no mirrors are
// configured they are discovered from the aggregator page.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(app)
	}
	app.logger.Info("building application dependencies",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Int("workers", cfg.Batch.Workers),
	)

	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	if err := setupFetchers(a); err != nil {
		return err
	}
	if err := setupMirrors(ctx, a); err != nil {
		return err
	}
	if a.blobs == nil {
		blobs, err := setupStorage(ctx, a)
		if err != nil {
			return err
		}
		a.blobs = blobs
	}
	if err := setupDatabase(ctx, a); err != nil {
		return err
	}
	if err := setupPublisher(ctx, a); err != nil {
		return err
	}
	service, err := a.newService(download.Deps{
		NewResolver: func() download.Resolver { return a.newResolver(a.mirrors.Clone()) },
	})
	if err != nil {
		return err
	}
	a.service = service
	return nil
}

func setupFetchers(app *App) error {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.HTTP.RateLimitRPS,
		DefaultBurst: app.cfg.HTTP.RateLimitBurst,
	})
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:          app.cfg.HTTP.UserAgent,
		Timeout:            app.cfg.HTTP.Timeout,
		Proxy:              app.cfg.HTTP.Proxy,
		InsecureSkipVerify: app.cfg.HTTP.InsecureSkipVerify,
		MaxBodyBytes:       app.cfg.HTTP.MaxBodyBytes,
	}, limiter)
	if err != nil {
		return fmt.Errorf("fetcher init failed: %w", err)
	}
	app.fetcher = fetcher
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", app.cfg.HTTP.UserAgent),
		zap.Bool("insecure_skip_verify", app.cfg.HTTP.InsecureSkipVerify),
		zap.Float64("rate_limit_rps", app.cfg.HTTP.RateLimitRPS),
	)

	if !app.cfg.Headless.Enabled {
		return nil
	}
	app.renderer, err = headlessfetcher.New(headlessfetcher.Config{
		MaxParallel:        app.cfg.Headless.MaxParallel,
		UserAgent:          app.cfg.HTTP.UserAgent,
		Proxy:              app.cfg.HTTP.Proxy,
		InsecureSkipVerify: app.cfg.HTTP.InsecureSkipVerify,
		NavigationTimeout:  app.cfg.Headless.NavTimeout,
	})
	if err != nil {
		return fmt.Errorf("headless renderer init failed: %w", err)
	}
	app.logger.Info("headless render fallback enabled", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
	return nil
}

func setupMirrors(ctx context.Context, app *App) error {
	if len(app.cfg.Resolver.Mirrors) > 0 {
		app.mirrors = mirror.NewDirectory(app.cfg.Resolver.Mirrors)
		app.logger.Info("using configured mirrors", zap.Strings("mirrors", app.mirrors.List()))
		return nil
	}
	pattern := app.cfg.Resolver.MirrorPattern
	if pattern == "" {
		pattern = mirror.DefaultPattern
	}
	bases, err := mirror.Discover(ctx, app.fetcher, app.cfg.Resolver.AggregatorURL, pattern)
	if err != nil {
		return fmt.Errorf("mirror discovery failed: %w", err)
	}
	app.mirrors = mirror.NewDirectory(bases)
	app.logger.Info("discovered mirrors",
		zap.String("aggregator", app.cfg.Resolver.AggregatorURL),
		zap.Strings("mirrors", bases),
	)
	return nil
}

func setupStorage(ctx context.Context, app *App) (document.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.BackendLocal:
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.OutputDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.OutputDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Debug("no DSN configured, resolution ledger disabled")
		return nil
	}
	ledger, err := pgstore.NewResolutionStore(ctx, pgstore.Config{
		DSN:      app.cfg.DB.DSN,
		Table:    app.cfg.DB.Table,
		MaxConns: app.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("resolution store init failed: %w", err)
	}
	app.ledger = ledger
	if err := ledger.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("resolution store schema failed: %w", err)
	}
	app.logger.Info("resolution ledger initialized", zap.String("table", app.cfg.DB.Table))
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.Topic == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Debug("no Pub/Sub topic configured, completion events disabled")
		return nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.publisher = gcppublisher.New(app.pubsubClient)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return nil
}

// newResolver builds a resolver over mirrors. a.mirrors is never handed out
// directly, so every resolver rotates its own copy.
func (a *App) newResolver(mirrors *mirror.Directory) *resolver.Resolver {
	opts := []resolver.Option{
		resolver.WithLogger(a.logger),
		resolver.WithRetryPolicy(resolver.NewExponentialRetryPolicy(
			a.cfg.Resolver.MaxAttempts,
			a.cfg.Resolver.BackoffBase,
			a.cfg.Resolver.BackoffMax,
		)),
	}
	if a.renderer != nil {
		opts = append(opts,
			resolver.WithRenderer(a.renderer),
			resolver.WithRenderGate(detector.NewHeuristic(a.cfg.Headless.PromotionThreshold)),
		)
	}
	return resolver.New(a.fetcher, mirrors, sha256.New(), resolver.Config{
		ContentType:       a.cfg.Resolver.ContentType,
		Extensions:        a.cfg.Resolver.ContentExtensions,
		MaxMirrorAttempts: a.cfg.Resolver.MaxMirrorAttempts,
	}, opts...)
}

// newService completes deps, which carries the resolver or its factory, with
// the application's storage and event sinks.
func (a *App) newService(deps download.Deps) (*download.Service, error) {
	deps.Blobs = a.blobs
	deps.Clock = system.New()
	deps.IDs = uuid.New()
	if a.ledger != nil {
		deps.Records = a.ledger
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	service, err := download.New(deps, download.Config{
		ContentType: a.cfg.Resolver.ContentType,
		Prefix:      a.cfg.Storage.Prefix,
		Topic:       a.cfg.PubSub.Topic,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("download service init failed: %w", err)
	}
	return service, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service returns the shared download service.
func (a *App) Service() *download.Service {
	return a.service
}

// Mirrors returns the mirrors every request starts from.
func (a *App) Mirrors() []string {
	return a.service.Mirrors()
}

// Batch returns a batch runner whose workers each rotate their own copy of
// the mirror directory for the length of the batch.
func (a *App) Batch() *download.Batch {
	return download.NewBatch(a.cfg.Batch.Workers, func(int) (*download.Service, error) {
		return a.newService(download.Deps{Resolver: a.newResolver(a.mirrors.Clone())})
	}, a.logger)
}

// Run serves the HTTP API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(a.service, a.cfg.Server.RequestTimeout, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every client the application opened.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func (a *App) closeInfrastructure() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
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
	if a.ledger != nil {
		a.ledger.Close()
	}
}
