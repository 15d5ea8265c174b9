// Package runner drives source adapters over partitions, applies the
// cooperative pause/stop checkpoint before every posting and upserts the
// results into the listing store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/clock/system"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/dedupe"
	"github.com/tulashvilimindia/batumi.work/internal/fetch"
	"github.com/tulashvilimindia/batumi.work/internal/id/uuid"
	"github.com/tulashvilimindia/batumi.work/internal/progress"
	"github.com/tulashvilimindia/batumi.work/internal/source"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid run request")

const (
	defaultPausePoll        = 2 * time.Second
	defaultProgressEvery    = 10
	defaultBatchConcurrency = 2
)

// Config tunes the orchestrator.
type Config struct {
	// PausePollInterval is how often a paused run re-reads its job.
	PausePollInterval time.Duration
	// ProgressEvery logs a progress line after this many successful items.
	ProgressEvery int
	// BatchConcurrency bounds parallel batch sub-runs.
	BatchConcurrency int
	// StaleAfter is the staleness window for the sweep. Zero disables it.
	StaleAfter time.Duration
	// Limits caps pages per partition and postings per run.
	Limits source.Limits
	// Fetch configures the per-run HTTP client.
	Fetch fetch.Config
}

// Deps are the collaborators of a Runner. Controls, Listings and Registry
// are required.
type Deps struct {
	Registry *source.Registry
	Controls store.ControlStore
	Listings store.ListingStore
	Seen     dedupe.Factory
	Archive  crawler.BlobStore
	Events   progress.Emitter
	Clock    crawler.Clock
	IDs      crawler.IDGenerator
	Logger   *zap.Logger
	// BaseContext parents runs started with Submit. Cancelling it
	// interrupts them.
	BaseContext context.Context
}

// Request describes one crawl run.
type Request struct {
	Kind        crawler.JobKind
	Source      string
	Partitions  []crawler.Partition
	TriggeredBy string
	Reason      string
}

// Runner executes crawl runs. Lookups are loaded once per Runner and then
// treated as read-only.
type Runner struct {
	cfg      Config
	registry *source.Registry
	controls store.ControlStore
	listings store.ListingStore
	seen     dedupe.Factory
	archive  crawler.BlobStore
	events   progress.Emitter
	clock    crawler.Clock
	ids      crawler.IDGenerator
	logger   *zap.Logger
	base     context.Context

	lookupsMu sync.Mutex
	lookups   *crawler.Lookups

	wg sync.WaitGroup
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.Registry == nil || deps.Controls == nil || deps.Listings == nil {
		return nil, fmt.Errorf("runner requires a registry, a control store and a listing store")
	}
	if cfg.PausePollInterval <= 0 {
		cfg.PausePollInterval = defaultPausePoll
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	r := &Runner{
		cfg:      cfg,
		registry: deps.Registry,
		controls: deps.Controls,
		listings: deps.Listings,
		seen:     deps.Seen,
		archive:  deps.Archive,
		events:   deps.Events,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   deps.Logger,
		base:     deps.BaseContext,
	}
	if r.seen == nil {
		r.seen = dedupe.MemoryFactory()
	}
	if r.events == nil {
		r.events = progress.NopEmitter{}
	}
	if r.clock == nil {
		r.clock = system.New()
	}
	if r.ids == nil {
		r.ids = uuid.NewUUIDGenerator()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.base == nil {
		r.base = context.Background()
	}
	return r, nil
}

func (r *Runner) now() time.Time {
	return r.clock.Now()
}

// Wait blocks until every run started with Submit has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Start validates req and persists a pending job without running it.
func (r *Runner) Start(ctx context.Context, req Request) (crawler.CrawlJob, error) {
	if err := r.validate(ctx, req.Source, req.Partitions); err != nil {
		return crawler.CrawlJob{}, err
	}
	if req.Kind == "" {
		req.Kind = crawler.JobKindManual
	}
	return r.createJob(ctx, crawler.CrawlJob{
		Kind:        req.Kind,
		Source:      req.Source,
		Partitions:  req.Partitions,
		TriggeredBy: req.TriggeredBy,
		Reason:      req.Reason,
	})
}

// Run starts and executes a job, blocking until it finishes.
func (r *Runner) Run(ctx context.Context, req Request) (crawler.CrawlJob, error) {
	job, err := r.Start(ctx, req)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	return r.Execute(ctx, job.ID)
}

// Submit starts a job and executes it in the background. The returned job
// is still pending.
func (r *Runner) Submit(ctx context.Context, req Request) (crawler.CrawlJob, error) {
	job, err := r.Start(ctx, req)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	r.background(job.ID)
	return job, nil
}

func (r *Runner) background(jobID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Execute(r.base, jobID); err != nil {
			r.logger.Error("background run failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
}

func (r *Runner) validate(ctx context.Context, name string, partitions []crawler.Partition) error {
	if name == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	adapter, err := r.registry.New(name, source.Deps{Logger: r.logger, Clock: r.clock})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(partitions) == 0 {
		return nil
	}
	if _, err := adapter.DiscoverPartitions(ctx, partitions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (r *Runner) createJob(ctx context.Context, job crawler.CrawlJob) (crawler.CrawlJob, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	job.ID = id
	job.Status = crawler.JobStatusPending
	job.CreatedAt = r.now()
	if err := r.controls.CreateJob(ctx, job); err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Execute runs an existing pending job to a terminal status and returns
// the final record. The error is non-nil only when the job could not be
// started or read back.
func (r *Runner) Execute(ctx context.Context, jobID string) (crawler.CrawlJob, error) {
	job, err := r.controls.GetJob(ctx, jobID)
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	started := r.now()
	if err := r.controls.StartJob(ctx, jobID, started); err != nil {
		return job, fmt.Errorf("start job %s: %w", jobID, err)
	}
	logger := r.logger.With(zap.String("job_id", jobID), zap.String("source", job.Source))
	logger.Info("crawl run started", zap.String("kind", string(job.Kind)), zap.Int("partitions", len(job.Partitions)))
	r.events.Emit(progress.Event{JobID: jobID, Source: job.Source, TS: started, Stage: progress.StageRunStart})

	rn := &run{r: r, job: job, logger: logger}
	status, message := rn.execute(ctx)

	// The run context may already be cancelled; the final write must
	// still land.
	finishCtx := context.WithoutCancel(ctx)
	finished := r.now()
	if err := r.controls.FinishJob(finishCtx, jobID, status, message, finished); err != nil {
		logger.Error("finish job failed", zap.Error(err))
	}
	final, err := r.controls.GetJob(finishCtx, jobID)
	if err != nil {
		return job, fmt.Errorf("reload job %s: %w", jobID, err)
	}

	if final.Kind == crawler.JobKindScheduled && final.Status == crawler.JobStatusCompleted {
		if n, err := r.Sweep(finishCtx, final.Source); err != nil {
			logger.Error("staleness sweep failed", zap.Error(err))
		} else {
			logger.Info("staleness sweep finished", zap.Int64("deactivated", n))
		}
	}

	logger.Info("crawl run finished",
		zap.String("status", string(final.Status)),
		zap.Int("processed", final.Progress.Processed),
		zap.Int("new", final.Progress.New),
		zap.Int("updated", final.Progress.Updated),
		zap.Int("skipped", final.Progress.Skipped),
		zap.Int("failed", final.Progress.Failed),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	r.events.Emit(progress.Event{
		JobID:  jobID,
		Source: final.Source,
		TS:     finished,
		Stage:  progress.StageRunDone,
		Status: final.Status,
		Dur:    finished.Sub(started),
		Note:   final.ErrorMessage,
	})
	return final, nil
}

// Sweep deactivates listings of src not seen within the staleness window.
func (r *Runner) Sweep(ctx context.Context, src string) (int64, error) {
	if r.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	cutoff := r.now().Add(-r.cfg.StaleAfter)
	n, err := r.listings.DeactivateStale(ctx, src, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale listings of %s: %w", src, err)
	}
	return n, nil
}

func (r *Runner) loadLookups(ctx context.Context) (crawler.Lookups, error) {
	r.lookupsMu.Lock()
	defer r.lookupsMu.Unlock()
	if r.lookups != nil {
		return *r.lookups, nil
	}
	l, err := r.listings.LoadLookups(ctx)
	if err != nil {
		return crawler.Lookups{}, fmt.Errorf("load lookups: %w", err)
	}
	r.lookups = &l
	return l, nil
}
