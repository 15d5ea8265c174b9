package runner

import (
	"context"
	"fmt"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
)

// ReparseRequest targets one posting by its external id.
type ReparseRequest struct {
	Source      string
	ExternalID  string
	TriggeredBy string
}

// StartReparse persists a single-item job. The external id is kept as the
// job's current item until the run picks it up.
func (r *Runner) StartReparse(ctx context.Context, req ReparseRequest) (crawler.CrawlJob, error) {
	if req.ExternalID == "" {
		return crawler.CrawlJob{}, fmt.Errorf("%w: external id is required", ErrInvalidRequest)
	}
	if err := r.validate(ctx, req.Source, nil); err != nil {
		return crawler.CrawlJob{}, err
	}
	return r.createJob(ctx, crawler.CrawlJob{
		Kind:        crawler.JobKindSingle,
		Source:      req.Source,
		TriggeredBy: req.TriggeredBy,
		Reason:      "reparse " + req.ExternalID,
		CurrentItem: req.ExternalID,
	})
}

// Reparse fetches and upserts one posting, blocking until done.
func (r *Runner) Reparse(ctx context.Context, req ReparseRequest) (crawler.CrawlJob, error) {
	job, err := r.StartReparse(ctx, req)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	return r.Execute(ctx, job.ID)
}

// SubmitReparse starts a reparse job in the background.
func (r *Runner) SubmitReparse(ctx context.Context, req ReparseRequest) (crawler.CrawlJob, error) {
	job, err := r.StartReparse(ctx, req)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	r.background(job.ID)
	return job, nil
}
