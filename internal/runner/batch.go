package runner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

// BatchRequest asks for one sub-run per partition.
type BatchRequest struct {
	Source      string
	Partitions  []crawler.Partition
	Mode        crawler.BatchMode
	TriggeredBy string
	Reason      string
}

// StartBatch persists a batch and one pending batch-member job per
// partition.
func (r *Runner) StartBatch(ctx context.Context, req BatchRequest) (crawler.CrawlBatch, error) {
	if len(req.Partitions) == 0 {
		return crawler.CrawlBatch{}, fmt.Errorf("%w: a batch needs at least one partition", ErrInvalidRequest)
	}
	switch req.Mode {
	case "":
		req.Mode = crawler.BatchSequential
	case crawler.BatchSequential, crawler.BatchParallel:
	default:
		return crawler.CrawlBatch{}, fmt.Errorf("%w: unknown batch mode %q", ErrInvalidRequest, req.Mode)
	}
	if err := r.validate(ctx, req.Source, req.Partitions); err != nil {
		return crawler.CrawlBatch{}, err
	}
	batchID, err := r.ids.NewID()
	if err != nil {
		return crawler.CrawlBatch{}, err
	}
	batch := crawler.CrawlBatch{
		ID:          batchID,
		Source:      req.Source,
		Mode:        req.Mode,
		Status:      crawler.JobStatusPending,
		Total:       len(req.Partitions),
		TriggeredBy: req.TriggeredBy,
		CreatedAt:   r.now(),
	}
	for _, p := range req.Partitions {
		job, err := r.createJob(ctx, crawler.CrawlJob{
			Kind:        crawler.JobKindBatchMember,
			Source:      req.Source,
			Partitions:  []crawler.Partition{p},
			BatchID:     batchID,
			TriggeredBy: req.TriggeredBy,
			Reason:      req.Reason,
		})
		if err != nil {
			return crawler.CrawlBatch{}, err
		}
		batch.JobIDs = append(batch.JobIDs, job.ID)
	}
	if err := r.controls.CreateBatch(ctx, batch); err != nil {
		return crawler.CrawlBatch{}, fmt.Errorf("create batch: %w", err)
	}
	return batch, nil
}

// RunBatch starts and executes a batch, blocking until every sub-run has
// settled.
func (r *Runner) RunBatch(ctx context.Context, req BatchRequest) (crawler.CrawlBatch, error) {
	batch, err := r.StartBatch(ctx, req)
	if err != nil {
		return crawler.CrawlBatch{}, err
	}
	return r.ExecuteBatch(ctx, batch)
}

// SubmitBatch starts a batch and executes it in the background.
func (r *Runner) SubmitBatch(ctx context.Context, req BatchRequest) (crawler.CrawlBatch, error) {
	batch, err := r.StartBatch(ctx, req)
	if err != nil {
		return crawler.CrawlBatch{}, err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.ExecuteBatch(r.base, batch); err != nil {
			r.logger.Error("background batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}()
	return batch, nil
}

// ExecuteBatch runs the member jobs. In sequential mode partition order is
// kept and one failure does not block the rest; in parallel mode up to
// BatchConcurrency sub-runs execute at once. Counters are aggregated once
// every sub-run has settled.
func (r *Runner) ExecuteBatch(ctx context.Context, batch crawler.CrawlBatch) (crawler.CrawlBatch, error) {
	batch.Status = crawler.JobStatusRunning
	if err := r.controls.UpdateBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("mark batch running: %w", err)
	}
	logger := r.logger.With(zap.String("batch_id", batch.ID), zap.String("source", batch.Source))
	logger.Info("batch started", zap.String("mode", string(batch.Mode)), zap.Int("jobs", len(batch.JobIDs)))

	var (
		mu        sync.Mutex
		completed int
		failedN   int
	)
	settle := func(jobID string) {
		final, err := r.Execute(ctx, jobID)
		mu.Lock()
		defer mu.Unlock()
		if err == nil && final.Status == crawler.JobStatusCompleted {
			completed++
			return
		}
		failedN++
		if err != nil {
			logger.Error("batch member failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}

	if batch.Mode == crawler.BatchParallel {
		g := new(errgroup.Group)
		g.SetLimit(r.cfg.BatchConcurrency)
		for _, id := range batch.JobIDs {
			g.Go(func() error {
				settle(id)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, id := range batch.JobIDs {
			settle(id)
		}
	}

	done := r.now()
	batch.Completed = completed
	batch.Failed = failedN
	batch.CompletedAt = &done
	batch.Status = crawler.JobStatusCompleted
	if failedN == batch.Total {
		batch.Status = crawler.JobStatusFailed
	}
	if err := r.controls.UpdateBatch(context.WithoutCancel(ctx), batch); err != nil {
		return batch, fmt.Errorf("finish batch: %w", err)
	}
	logger.Info("batch finished", zap.Int("completed", completed), zap.Int("failed", failedN))
	return batch, nil
}
