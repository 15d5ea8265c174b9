package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// ControlStore implements store.ControlStore. Control operations are
// single conditional UPDATEs so concurrent signals cannot interleave.
type ControlStore struct {
	pool querier
}

// NewControlStore wraps a pool.
func NewControlStore(pool querier) (*ControlStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ControlStore{pool: pool}, nil
}

var _ store.ControlStore = (*ControlStore)(nil)

// Close releases the pool.
func (s *ControlStore) Close() {
	s.pool.Close()
}

const jobColumns = `id, kind, source, status, partitions, batch_id, triggered_by, reason,
	should_pause, should_stop, paused_at, paused_total_ms,
	total, processed, succeeded, failed, skipped, new_count, updated_count,
	current_partition, current_item, errors, error_message,
	created_at, started_at, completed_at`

// CreateJob inserts a job row.
func (s *ControlStore) CreateJob(ctx context.Context, job crawler.CrawlJob) error {
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	partitions, err := json.Marshal(job.Partitions)
	if err != nil {
		return fmt.Errorf("marshal partitions: %w", err)
	}
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	query := `
INSERT INTO crawl_jobs (` + jobColumns + `) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26
)`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.Kind, job.Source, job.Status, partitions, job.BatchID, job.TriggeredBy, job.Reason,
		job.ShouldPause, job.ShouldStop, job.PausedAt, job.PausedTotal.Milliseconds(),
		job.Progress.Total, job.Progress.Processed, job.Progress.Succeeded, job.Progress.Failed,
		job.Progress.Skipped, job.Progress.New, job.Progress.Updated,
		job.CurrentPartition, job.CurrentItem, errs, job.ErrorMessage,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("insert crawl job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *ControlStore) GetJob(ctx context.Context, id string) (crawler.CrawlJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlJob{}, store.ErrNotFound
	}
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("get crawl job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns matching jobs, newest first.
func (s *ControlStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]crawler.CrawlJob, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs
WHERE ($1 = '' OR source = $1) AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := s.pool.Query(ctx, query, filter.Source, string(filter.Status), store.PageSize(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list crawl jobs: %w", err)
	}
	defer rows.Close()
	out := []crawler.CrawlJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (crawler.CrawlJob, error) {
	var (
		job        crawler.CrawlJob
		partitions []byte
		pausedMS   int64
	)
	err := row.Scan(
		&job.ID, &job.Kind, &job.Source, &job.Status, &partitions, &job.BatchID, &job.TriggeredBy, &job.Reason,
		&job.ShouldPause, &job.ShouldStop, &job.PausedAt, &pausedMS,
		&job.Progress.Total, &job.Progress.Processed, &job.Progress.Succeeded, &job.Progress.Failed,
		&job.Progress.Skipped, &job.Progress.New, &job.Progress.Updated,
		&job.CurrentPartition, &job.CurrentItem, &job.Errors, &job.ErrorMessage,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	if len(partitions) > 0 {
		if err := json.Unmarshal(partitions, &job.Partitions); err != nil {
			return crawler.CrawlJob{}, fmt.Errorf("decode partitions: %w", err)
		}
	}
	job.PausedTotal = time.Duration(pausedMS) * time.Millisecond
	return job, nil
}

// StartJob moves a pending job to running.
func (s *ControlStore) StartJob(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET status = $2, started_at = $3 WHERE id = $1 AND status = $4`,
		id, crawler.JobStatusRunning, at, crawler.JobStatusPending)
	if err != nil {
		return fmt.Errorf("start crawl job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

// UpdateProgress writes counters and live pointers only.
func (s *ControlStore) UpdateProgress(ctx context.Context, id string, p crawler.JobProgress, partition, item string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET
	total = $2, processed = $3, succeeded = $4, failed = $5, skipped = $6,
	new_count = $7, updated_count = $8, current_partition = $9, current_item = $10
WHERE id = $1`,
		id, p.Total, p.Processed, p.Succeeded, p.Failed, p.Skipped, p.New, p.Updated, partition, item)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendError records a partition-level failure.
func (s *ControlStore) AppendError(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE crawl_jobs SET errors = array_append(errors, $2) WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("append error %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkPaused acknowledges a pause request at a checkpoint.
func (s *ControlStore) MarkPaused(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET status = $2, should_pause = FALSE, paused_at = $3
WHERE id = $1 AND status = $4 AND should_pause`,
		id, crawler.JobStatusPaused, at, crawler.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("mark paused %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishJob records a terminal status. An operator cancel already in the
// row wins; a stopping job never ends as completed.
func (s *ControlStore) FinishJob(ctx context.Context, id string, status crawler.JobStatus, message string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET
	status = CASE
		WHEN status IN ('completed', 'failed', 'cancelled') THEN status
		WHEN status IN ('stopping', 'paused') AND $2 = 'completed' THEN 'cancelled'
		ELSE $2 END,
	error_message = CASE WHEN error_message = '' THEN $3 ELSE error_message END,
	completed_at = COALESCE(completed_at, $4),
	should_pause = FALSE
WHERE id = $1`,
		id, string(status), message, at)
	if err != nil {
		return fmt.Errorf("finish crawl job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Pause raises the pause flag on a running job.
func (s *ControlStore) Pause(ctx context.Context, id string, _ time.Time) (bool, error) {
	return s.control(ctx, id, jobcontrol.ActionPause,
		`UPDATE crawl_jobs SET should_pause = TRUE WHERE id = $1 AND status = ANY($2) AND NOT should_stop`)
}

// Resume puts a paused job back to running and adds the pause length to
// paused_total_ms.
func (s *ControlStore) Resume(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.control(ctx, id, jobcontrol.ActionResume, `
UPDATE crawl_jobs SET
	status = 'running',
	should_pause = FALSE,
	paused_total_ms = paused_total_ms + COALESCE((EXTRACT(EPOCH FROM ($3::timestamptz - paused_at)) * 1000)::bigint, 0),
	paused_at = NULL
WHERE id = $1 AND status = ANY($2)`, at)
}

// Stop requests a graceful stop.
func (s *ControlStore) Stop(ctx context.Context, id string, _ time.Time) (bool, error) {
	return s.control(ctx, id, jobcontrol.ActionStop,
		`UPDATE crawl_jobs SET status = 'stopping', should_stop = TRUE WHERE id = $1 AND status = ANY($2)`)
}

// Cancel ends a job immediately.
func (s *ControlStore) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.control(ctx, id, jobcontrol.ActionCancel, `
UPDATE crawl_jobs SET
	status = 'cancelled',
	should_stop = TRUE,
	completed_at = $3,
	reason = CASE WHEN reason = '' THEN 'cancelled by operator' ELSE reason END
WHERE id = $1 AND status = ANY($2)`, at)
}

func (s *ControlStore) control(ctx context.Context, id string, action jobcontrol.Action, query string, extra ...any) (bool, error) {
	allowed := statusStrings(jobcontrol.AllowedFrom(action))
	args := append([]any{id, allowed}, extra...)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s crawl job %s: %w", action, id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM crawl_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check crawl job %s: %w", id, err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

func statusStrings(statuses []crawler.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

const itemColumns = `id, job_id, external_id, source_url, region, category, keyword,
	result, skip_reason, error_text, status_code, listing_id, started_at, completed_at`

// CreateItem inserts an audit row.
func (s *ControlStore) CreateItem(ctx context.Context, item crawler.CrawlItem) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO crawl_job_items (job_id, external_id, source_url, region, category, keyword, started_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`,
		item.JobID, item.ExternalID, item.SourceURL,
		item.Partition.Region, item.Partition.Category, item.Partition.Keyword, item.StartedAt,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("insert crawl item: %w", err)
	}
	return id, nil
}

// FinalizeItem writes the outcome once; a finalized row is immutable.
func (s *ControlStore) FinalizeItem(ctx context.Context, item crawler.CrawlItem) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_job_items SET
	result = $2, skip_reason = $3, error_text = $4, status_code = $5,
	listing_id = $6, external_id = $7, source_url = $8, completed_at = $9
WHERE id = $1 AND completed_at IS NULL`,
		item.ID, string(item.Result), item.SkipReason, item.ErrorText, item.StatusCode,
		item.ListingID, item.ExternalID, item.SourceURL, item.CompletedAt)
	if err != nil {
		return fmt.Errorf("finalize crawl item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

// ListItems returns a job's items in processing order.
func (s *ControlStore) ListItems(ctx context.Context, jobID string, limit, offset int) ([]crawler.CrawlItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM crawl_job_items WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, store.PageSize(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list crawl items: %w", err)
	}
	defer rows.Close()
	out := []crawler.CrawlItem{}
	for rows.Next() {
		var (
			item   crawler.CrawlItem
			result string
		)
		if err := rows.Scan(
			&item.ID, &item.JobID, &item.ExternalID, &item.SourceURL,
			&item.Partition.Region, &item.Partition.Category, &item.Partition.Keyword,
			&result, &item.SkipReason, &item.ErrorText, &item.StatusCode, &item.ListingID,
			&item.StartedAt, &item.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan crawl item: %w", err)
		}
		item.Result = crawler.ItemResult(result)
		out = append(out, item)
	}
	return out, rows.Err()
}

const batchColumns = `id, source, mode, status, job_ids, total, completed, failed, triggered_by, created_at, completed_at`

// CreateBatch inserts a batch row.
func (s *ControlStore) CreateBatch(ctx context.Context, b crawler.CrawlBatch) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO crawl_batches (`+batchColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.Source, b.Mode, b.Status, b.JobIDs, b.Total, b.Completed, b.Failed, b.TriggeredBy, b.CreatedAt, b.CompletedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("insert crawl batch: %w", err)
	}
	return nil
}

// UpdateBatch writes the aggregate counters and status.
func (s *ControlStore) UpdateBatch(ctx context.Context, b crawler.CrawlBatch) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_batches SET status = $2, job_ids = $3, total = $4, completed = $5, failed = $6, completed_at = $7
WHERE id = $1`,
		b.ID, b.Status, b.JobIDs, b.Total, b.Completed, b.Failed, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("update crawl batch %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetBatch fetches a batch by id.
func (s *ControlStore) GetBatch(ctx context.Context, id string) (crawler.CrawlBatch, error) {
	var b crawler.CrawlBatch
	err := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM crawl_batches WHERE id = $1`, id).Scan(
		&b.ID, &b.Source, &b.Mode, &b.Status, &b.JobIDs, &b.Total, &b.Completed, &b.Failed,
		&b.TriggeredBy, &b.CreatedAt, &b.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlBatch{}, store.ErrNotFound
	}
	if err != nil {
		return crawler.CrawlBatch{}, fmt.Errorf("get crawl batch %s: %w", id, err)
	}
	return b, nil
}
