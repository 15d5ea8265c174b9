// Package scheduler triggers one scheduled crawl run per enabled source on
// a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
)

// Runner is the part of runner.Runner the scheduler drives.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (crawler.CrawlJob, error)
}

// Config controls the schedule.
type Config struct {
	Interval time.Duration
	Sources  []string
	// Regions restricts every run to these region slugs. Empty means all.
	Regions    []string
	RunOnStart bool
}

// Scheduler wraps robfig/cron. A cycle still running when the next tick
// fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	runner Runner
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New builds a Scheduler. Start must be called to begin ticking.
func New(cfg Config, r Runner, logger *zap.Logger) (*Scheduler, error) {
	if r == nil {
		return nil, fmt.Errorf("scheduler requires a runner")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl)),
		runner: r,
		cfg:    cfg,
		logger: logger,
		ctx:    context.Background(),
	}
	s.job = cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.Tick(s.context())
	}))
	return s, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start registers the job and starts ticking. With RunOnStart one cycle
// begins immediately in the background. Cycles run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Schedule(cron.Every(s.cfg.Interval), s.job)
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Strings("sources", s.cfg.Sources),
		zap.Strings("regions", s.cfg.Regions),
	)
	if s.cfg.RunOnStart {
		go s.job.Run()
	}
}

// Stop stops ticking and waits for a running cycle until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one scheduled run per source, in order. A failing source does
// not prevent the next one.
func (s *Scheduler) Tick(ctx context.Context) {
	s.logger.Info("scheduled cycle started", zap.Int("sources", len(s.cfg.Sources)))
	for _, src := range s.cfg.Sources {
		if ctx.Err() != nil {
			return
		}
		job, err := s.runner.Run(ctx, runner.Request{
			Kind:        crawler.JobKindScheduled,
			Source:      src,
			Partitions:  s.partitions(),
			TriggeredBy: "scheduler",
			Reason:      "scheduled run",
		})
		if err != nil {
			s.logger.Error("scheduled run failed", zap.String("source", src), zap.Error(err))
			continue
		}
		s.logger.Info("scheduled run finished",
			zap.String("source", src),
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
	}
	s.logger.Info("scheduled cycle complete")
}

func (s *Scheduler) partitions() []crawler.Partition {
	if len(s.cfg.Regions) == 0 {
		return nil
	}
	out := make([]crawler.Partition, 0, len(s.cfg.Regions))
	for _, r := range s.cfg.Regions {
		out = append(out, crawler.Partition{Region: r})
	}
	return out
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
