package store

import (
	"context"
	"errors"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits the (source,
	// external_id) unique constraint.
	ErrDuplicate = errors.New("duplicate listing")
	// ErrConflict is returned when a write is not allowed in the record's
	// current state.
	ErrConflict = errors.New("state conflict")
)

// JobFilter narrows ListJobs. Zero values match everything; results are
// newest first.
type JobFilter struct {
	Source string
	Status crawler.JobStatus
	Limit  int
	Offset int
}

// DefaultPageSize applies when a filter has no limit.
const DefaultPageSize = 50

// ControlStore persists crawl jobs, their audit items and batches. Control
// operations return false, nil when the job's status does not allow them.
type ControlStore interface {
	CreateJob(ctx context.Context, job crawler.CrawlJob) error
	GetJob(ctx context.Context, id string) (crawler.CrawlJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]crawler.CrawlJob, error)

	StartJob(ctx context.Context, id string, at time.Time) error
	UpdateProgress(ctx context.Context, id string, progress crawler.JobProgress, partition, item string) error
	AppendError(ctx context.Context, id string, message string) error
	MarkPaused(ctx context.Context, id string, at time.Time) (bool, error)
	FinishJob(ctx context.Context, id string, status crawler.JobStatus, message string, at time.Time) error

	Pause(ctx context.Context, id string, at time.Time) (bool, error)
	Resume(ctx context.Context, id string, at time.Time) (bool, error)
	Stop(ctx context.Context, id string, at time.Time) (bool, error)
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)

	CreateItem(ctx context.Context, item crawler.CrawlItem) (int64, error)
	FinalizeItem(ctx context.Context, item crawler.CrawlItem) error
	ListItems(ctx context.Context, jobID string, limit, offset int) ([]crawler.CrawlItem, error)

	CreateBatch(ctx context.Context, batch crawler.CrawlBatch) error
	UpdateBatch(ctx context.Context, batch crawler.CrawlBatch) error
	GetBatch(ctx context.Context, id string) (crawler.CrawlBatch, error)
}

// ListingStore persists listings keyed by (source, external_id).
type ListingStore interface {
	LoadLookups(ctx context.Context) (crawler.Lookups, error)
	FindListing(ctx context.Context, source, externalID string) (crawler.Listing, error)
	// InsertListing returns the new id or ErrDuplicate.
	InsertListing(ctx context.Context, listing crawler.Listing) (int64, error)
	// TouchListing refreshes last_seen and carries forward hints without
	// changing content.
	TouchListing(ctx context.Context, id int64, seenAt time.Time, hints crawler.ListingHints) error
	// OverwriteListing replaces content fields and forces the listing
	// active.
	OverwriteListing(ctx context.Context, listing crawler.Listing) error
	// DeactivateStale marks active, non-manual listings of source last seen
	// before olderThan inactive and returns how many changed.
	DeactivateStale(ctx context.Context, source string, olderThan time.Time) (int64, error)
	// CountUnqueued counts active listings not yet queued for the channel
	// publisher. An empty source counts all sources.
	CountUnqueued(ctx context.Context, source string) (int64, error)
}

// ControlFunc picks the control operation for action.
func ControlFunc(s ControlStore, action jobcontrol.Action) (func(context.Context, string, time.Time) (bool, error), bool) {
	switch action {
	case jobcontrol.ActionPause:
		return s.Pause, true
	case jobcontrol.ActionResume:
		return s.Resume, true
	case jobcontrol.ActionStop:
		return s.Stop, true
	case jobcontrol.ActionCancel:
		return s.Cancel, true
	default:
		return nil, false
	}
}

// PageSize clamps a requested limit to (0, 500].
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > 500:
		return 500
	default:
		return limit
	}
}
