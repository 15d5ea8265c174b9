// Package app builds the long-lived services every command shares: the
// adapter registry, the stores, the seen-set backend, the raw archive, the
// progress hub and the runner on top of them.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/clock/system"
	"github.com/tulashvilimindia/batumi.work/internal/config"
	"github.com/tulashvilimindia/batumi.work/internal/content"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/dedupe"
	"github.com/tulashvilimindia/batumi.work/internal/fetch"
	"github.com/tulashvilimindia/batumi.work/internal/metrics"
	"github.com/tulashvilimindia/batumi.work/internal/progress"
	"github.com/tulashvilimindia/batumi.work/internal/progress/sinks"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
	"github.com/tulashvilimindia/batumi.work/internal/source"
	"github.com/tulashvilimindia/batumi.work/internal/source/hrge"
	"github.com/tulashvilimindia/batumi.work/internal/source/jobsge"
	"github.com/tulashvilimindia/batumi.work/internal/storage"
	"github.com/tulashvilimindia/batumi.work/internal/storage/memory"
	"github.com/tulashvilimindia/batumi.work/internal/storage/postgres"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

const acceptLanguage = "en-US,en;q=0.9,ka;q=0.8"

// Options are the process-level knobs that do not come from config.
type Options struct {
	// Registerer receives the progress collectors. Nil means the default
	// registry.
	Registerer prometheus.Registerer
	// BaseContext parents runs started in the background.
	BaseContext context.Context
}

// App holds the shared services. It is built once per command.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	registry *source.Registry
	controls store.ControlStore
	listings store.ListingStore
	hub      *progress.Hub
	runner   *runner.Runner

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// New connects the backends named by cfg. It fails fast: any backend that
// cannot be reached aborts startup and releases what was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	metrics.Init()

	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		registry: NewRegistry(),
	}
	if err := a.init(ctx, opts); err != nil {
		_ = a.closeResources()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.Strings("sources", a.registry.Names()),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.String("dedupe", cfg.Dedupe.Backend),
		zap.String("archive", cfg.Archive.Provider),
	)
	return a, nil
}

// NewRegistry returns a registry with every built-in adapter.
func NewRegistry() *source.Registry {
	reg := source.NewRegistry()
	reg.Register(jobsge.Name, jobsge.Factory)
	reg.Register(hrge.Name, hrge.Factory)
	return reg
}

func (a *App) init(ctx context.Context, opts Options) error {
	if err := a.openStores(ctx); err != nil {
		return err
	}

	seen, err := a.openDedupe(ctx)
	if err != nil {
		return err
	}

	archive, closeArchive, err := storage.OpenArchive(ctx, storage.ArchiveConfig{
		Provider: a.cfg.Archive.Provider,
		BaseDir:  a.cfg.Archive.BaseDir,
		Bucket:   a.cfg.Archive.Bucket,
		Prefix:   a.cfg.Archive.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"archive", closeArchive})

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return fmt.Errorf("failed to initialize progress metrics: %w", err)
	}
	progressLog := a.logger.Named("progress")
	a.hub = progress.NewHub(progress.Config{Logger: progressLog}, sinks.NewLogSink(progressLog), promSink)

	a.runner, err = runner.New(RunnerConfig(a.cfg), runner.Deps{
		Registry:    a.registry,
		Controls:    a.controls,
		Listings:    a.listings,
		Seen:        seen,
		Archive:     archive,
		Events:      a.hub,
		Clock:       a.clock,
		Logger:      a.logger.Named("runner"),
		BaseContext: opts.BaseContext,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize runner: %w", err)
	}
	return nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("db.dsn not set, using in-memory stores; nothing will persist")
		lookups := memory.DefaultLookups(content.Categories(), jobsge.Regions())
		a.controls = memory.NewControlStore()
		a.listings = memory.NewListingStore(lookups)
		return nil
	}

	a.logger.Info("connecting to postgres")
	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: int32(a.cfg.DB.MaxConns), //nolint:gosec // bounded by config validation
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"postgres", func() error {
		pool.Close()
		return nil
	}})

	controls, err := postgres.NewControlStore(pool)
	if err != nil {
		return fmt.Errorf("failed to initialize control store: %w", err)
	}
	listings, err := postgres.NewListingStore(pool)
	if err != nil {
		return fmt.Errorf("failed to initialize listing store: %w", err)
	}
	a.controls = controls
	a.listings = listings
	return nil
}

func (a *App) openDedupe(ctx context.Context) (dedupe.Factory, error) {
	if a.cfg.Dedupe.Backend != "redis" {
		return dedupe.MemoryFactory(), nil
	}
	client, err := dedupe.NewRedisClient(ctx, a.cfg.Dedupe.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis seen-set: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"redis", client.Close})
	return dedupe.RedisFactory(client, a.cfg.Dedupe.TTL), nil
}

// RunnerConfig maps service config onto the runner's knobs.
func RunnerConfig(cfg config.Config) runner.Config {
	fetchCfg := fetch.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		AcceptLanguage: acceptLanguage,
		Delay:          cfg.HTTP.Delay,
		Jitter:         cfg.HTTP.Jitter,
		Timeout:        cfg.HTTP.Timeout,
		MaxAttempts:    cfg.HTTP.MaxRetries,
		BackoffBase:    cfg.HTTP.BackoffInitial,
		BackoffMax:     cfg.HTTP.BackoffMax,
	}
	if cfg.Proxy.Enabled {
		fetchCfg.Proxies = append([]string(nil), cfg.Proxy.List...)
	}
	return runner.Config{
		PausePollInterval: cfg.Runner.PausePollInterval,
		ProgressEvery:     cfg.Runner.ProgressEvery,
		BatchConcurrency:  cfg.Runner.BatchConcurrency,
		StaleAfter:        cfg.StaleAfter(),
		Limits: source.Limits{
			MaxPages: cfg.Limits.MaxPages,
			MaxJobs:  cfg.Limits.MaxJobs,
		},
		Fetch: fetchCfg,
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the wall clock shared by the services.
func (a *App) Clock() crawler.Clock { return a.clock }

// Registry returns the adapter registry.
func (a *App) Registry() *source.Registry { return a.registry }

// Controls returns the job control store.
func (a *App) Controls() store.ControlStore { return a.controls }

// Listings returns the listing store.
func (a *App) Listings() store.ListingStore { return a.listings }

// Runner returns the orchestrator.
func (a *App) Runner() *runner.Runner { return a.runner }

// Close waits for background runs, drains the progress hub and releases
// the backends in reverse order. Cancel the base context first or Close
// waits for running jobs to finish on their own.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	if a.runner != nil {
		a.runner.Wait()
	}
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
