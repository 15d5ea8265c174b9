package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/fetch"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
	"github.com/tulashvilimindia/batumi.work/internal/progress"
	"github.com/tulashvilimindia/batumi.work/internal/source"
)

const cancelledMessage = "stopped by operator"

// run is the state of one executing job. It is owned by a single goroutine.
type run struct {
	r       *Runner
	job     crawler.CrawlJob
	logger  *zap.Logger
	adapter source.Adapter
	lookups crawler.Lookups

	progress  crawler.JobProgress
	partition string
	handled   int
	lastError string
}

func (rn *run) execute(ctx context.Context) (crawler.JobStatus, string) {
	lookups, err := rn.r.loadLookups(ctx)
	if err != nil {
		return crawler.JobStatusFailed, err.Error()
	}
	rn.lookups = lookups

	client := fetch.New(rn.r.cfg.Fetch, rn.logger)
	defer client.Close()
	adapter, err := rn.r.registry.New(rn.job.Source, source.Deps{
		Client: client,
		Seen:   rn.r.seen(rn.job.ID),
		Logger: rn.logger,
		Clock:  rn.r.clock,
	})
	if err != nil {
		return crawler.JobStatusFailed, err.Error()
	}
	rn.adapter = adapter

	if rn.job.Kind == crawler.JobKindSingle {
		return rn.reparse(ctx, rn.job.CurrentItem)
	}

	partitions, err := adapter.DiscoverPartitions(ctx, rn.job.Partitions)
	if err != nil {
		return crawler.JobStatusFailed, fmt.Sprintf("discover partitions: %v", err)
	}

	var (
		failures int
		lastErr  error
	)
	for _, p := range partitions {
		if rn.budgetSpent() {
			rn.logger.Info("job budget reached", zap.Int("max_jobs", rn.r.cfg.Limits.MaxJobs))
			break
		}
		if err := rn.checkpoint(ctx); err != nil {
			return rn.interrupted(ctx, err)
		}
		err := rn.runPartition(ctx, p)
		switch {
		case errors.Is(err, crawler.ErrRunCancelled), ctx.Err() != nil:
			return rn.interrupted(ctx, err)
		case err != nil:
			failures++
			lastErr = err
			msg := p.Key() + ": " + err.Error()
			rn.logger.Error("partition failed", zap.String("partition", p.Key()), zap.Error(err))
			if appendErr := rn.r.controls.AppendError(ctx, rn.job.ID, msg); appendErr != nil {
				rn.logger.Warn("record partition error failed", zap.Error(appendErr))
			}
		}
	}
	if len(partitions) > 0 && failures == len(partitions) {
		return crawler.JobStatusFailed, fmt.Sprintf("all %d partitions failed, last: %v", failures, lastErr)
	}
	return crawler.JobStatusCompleted, ""
}

func (rn *run) interrupted(ctx context.Context, err error) (crawler.JobStatus, string) {
	if errors.Is(err, crawler.ErrRunCancelled) {
		return crawler.JobStatusCancelled, cancelledMessage
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return crawler.JobStatusCancelled, "interrupted: " + ctxErr.Error()
	}
	return crawler.JobStatusFailed, err.Error()
}

func (rn *run) budgetSpent() bool {
	limit := rn.r.cfg.Limits.MaxJobs
	return limit > 0 && rn.handled >= limit
}

// runPartition runs one partition. Panics are turned into partition errors
// so the next partition still runs.
func (rn *run) runPartition(ctx context.Context, p crawler.Partition) (err error) {
	start := rn.r.now()
	rn.partition = p.Key()
	before := rn.progress
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in partition %s: %v", p.Key(), rec)
		}
		note := ""
		if err != nil && !errors.Is(err, crawler.ErrRunCancelled) {
			note = err.Error()
		}
		rn.logger.Info("partition finished",
			zap.String("partition", p.Key()),
			zap.Int("processed", rn.progress.Processed-before.Processed),
			zap.Int("new", rn.progress.New-before.New),
			zap.Int("updated", rn.progress.Updated-before.Updated),
		)
		rn.r.events.Emit(progress.Event{
			JobID:     rn.job.ID,
			Source:    rn.job.Source,
			TS:        rn.r.now(),
			Stage:     progress.StagePartitionDone,
			Partition: p.Key(),
			Dur:       rn.r.now().Sub(start),
			Note:      note,
		})
	}()

	limits := rn.r.cfg.Limits
	if limits.MaxJobs > 0 {
		limits.MaxJobs -= rn.handled
	}
	_, err = source.Run(ctx, rn.adapter, p, limits, func(ctx context.Context, item source.Item) error {
		return rn.handle(ctx, p, item)
	})
	return err
}

// checkpoint observes the job's control flags. It returns
// crawler.ErrRunCancelled when the run must unwind and blocks while the job
// is paused. A failed read is logged and the run continues.
func (rn *run) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := rn.r.controls.GetJob(ctx, rn.job.ID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rn.logger.Warn("checkpoint read failed", zap.Error(err))
		return nil
	}
	switch jobcontrol.Decide(job) {
	case jobcontrol.Stop:
		return crawler.ErrRunCancelled
	case jobcontrol.Pause:
		return rn.waitWhilePaused(ctx)
	default:
		return nil
	}
}

func (rn *run) waitWhilePaused(ctx context.Context) error {
	if _, err := rn.r.controls.MarkPaused(ctx, rn.job.ID, rn.r.now()); err != nil {
		rn.logger.Warn("mark paused failed", zap.Error(err))
	}
	rn.logger.Info("crawl run paused", zap.String("partition", rn.partition))
	ticker := time.NewTicker(rn.r.cfg.PausePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		job, err := rn.r.controls.GetJob(ctx, rn.job.ID)
		if err != nil {
			rn.logger.Warn("pause poll failed", zap.Error(err))
			continue
		}
		switch jobcontrol.Decide(job) {
		case jobcontrol.Stop:
			return crawler.ErrRunCancelled
		case jobcontrol.Continue:
			rn.logger.Info("crawl run resumed", zap.Duration("paused_total", job.PausedTotal))
			return nil
		case jobcontrol.Pause:
			// Resumed and paused again between two polls.
			if job.Status == crawler.JobStatusRunning && job.ShouldPause {
				if _, err := rn.r.controls.MarkPaused(ctx, rn.job.ID, rn.r.now()); err != nil {
					rn.logger.Warn("mark paused failed", zap.Error(err))
				}
			}
		}
	}
}

// handle is the per-posting callback: checkpoint, audit row, upsert,
// finalize, counters.
func (rn *run) handle(ctx context.Context, p crawler.Partition, item source.Item) error {
	if err := rn.checkpoint(ctx); err != nil {
		return err
	}
	rn.handled++
	rn.progress.Total++

	externalID, sourceURL := item.Entry.ExternalID, item.Entry.URL
	if item.Record != nil {
		if item.Record.ExternalID != "" {
			externalID = item.Record.ExternalID
		}
		if item.Record.SourceURL != "" {
			sourceURL = item.Record.SourceURL
		}
	}
	audit := crawler.CrawlItem{
		JobID:      rn.job.ID,
		ExternalID: externalID,
		SourceURL:  sourceURL,
		Partition:  p,
		StartedAt:  rn.r.now(),
	}
	itemID, err := rn.r.controls.CreateItem(ctx, audit)
	if err != nil {
		rn.logger.Warn("create audit item failed", zap.String("external_id", externalID), zap.Error(err))
	}

	out := rn.process(ctx, item)

	if itemID != 0 {
		done := rn.r.now()
		audit.ID = itemID
		audit.Result = out.result
		audit.SkipReason = out.reason
		audit.ErrorText = out.errText
		audit.StatusCode = out.statusCode
		audit.ListingID = out.listingID
		audit.CompletedAt = &done
		if err := rn.r.controls.FinalizeItem(ctx, audit); err != nil {
			rn.logger.Warn("finalize audit item failed", zap.Int64("item_id", itemID), zap.Error(err))
		}
	}
	rn.record(ctx, externalID, out)
	return nil
}

func (rn *run) record(ctx context.Context, externalID string, out outcome) {
	rn.progress.Record(out.result)
	if err := rn.r.controls.UpdateProgress(ctx, rn.job.ID, rn.progress, rn.partition, externalID); err != nil {
		rn.logger.Warn("update progress failed", zap.Error(err))
	}
	fields := []zap.Field{
		zap.String("partition", rn.partition),
		zap.String("external_id", externalID),
		zap.String("result", string(out.result)),
	}
	switch out.result {
	case crawler.ItemFailed:
		rn.lastError = out.errText
		rn.logger.Warn("item failed", append(fields, zap.String("error", out.errText))...)
	case crawler.ItemSkipped:
		rn.logger.Debug("item skipped", append(fields, zap.String("reason", out.reason))...)
	default:
		if rn.progress.Succeeded%rn.r.cfg.ProgressEvery == 0 {
			rn.logger.Info("crawl progress",
				zap.String("partition", rn.partition),
				zap.Int("processed", rn.progress.Processed),
				zap.Int("new", rn.progress.New),
				zap.Int("updated", rn.progress.Updated),
				zap.Int("skipped", rn.progress.Skipped),
				zap.Int("failed", rn.progress.Failed),
			)
		}
	}
	note := out.reason
	if out.errText != "" {
		note = out.errText
	}
	rn.r.events.Emit(progress.Event{
		JobID:      rn.job.ID,
		Source:     rn.job.Source,
		TS:         rn.r.now(),
		Stage:      progress.StageItemDone,
		Partition:  rn.partition,
		ExternalID: externalID,
		Result:     out.result,
		Note:       note,
	})
}

// reparse resolves one external id to its detail page and upserts it once.
func (rn *run) reparse(ctx context.Context, externalID string) (crawler.JobStatus, string) {
	if externalID == "" {
		return crawler.JobStatusFailed, "reparse job has no external id"
	}
	entry := source.ListEntry{ExternalID: externalID, URL: rn.adapter.DetailURL(externalID)}
	record, err := rn.adapter.FetchDetail(ctx, entry, crawler.Partition{})
	if err := rn.handle(ctx, crawler.Partition{}, source.Item{Entry: entry, Record: record, Err: err}); err != nil {
		return rn.interrupted(ctx, err)
	}
	if rn.progress.Failed > 0 {
		return crawler.JobStatusFailed, fmt.Sprintf("reparse %s: %s", externalID, rn.lastError)
	}
	return crawler.JobStatusCompleted, ""
}
