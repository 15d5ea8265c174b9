// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the crawl_jobs table.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusStopping  JobStatus = "stopping"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobKind records why a crawl job exists.
type JobKind string

// Supported job kinds.
const (
	JobKindScheduled   JobKind = "scheduled"
	JobKindManual      JobKind = "manual"
	JobKindSingle      JobKind = "single"
	JobKindBatchMember JobKind = "batch-member"
	JobKindRetry       JobKind = "retry"
)

// ItemResult is the outcome of processing one posting.
type ItemResult string

// Item outcomes recorded on crawl items and counted on jobs.
const (
	ItemNew     ItemResult = "new"
	ItemUpdated ItemResult = "updated"
	ItemSkipped ItemResult = "skipped"
	ItemFailed  ItemResult = "failed"
)

// Skip reasons attached to skipped items.
const (
	SkipUnchangedContent = "unchanged_content"
	SkipNoCategory       = "no_category"
	SkipMissingTitle     = "missing_title"
	SkipRegionFiltered   = "region_filtered"
)

// ListingStatus mirrors the jobs.status column.
type ListingStatus string

// Listing status values.
const (
	ListingActive   ListingStatus = "active"
	ListingInactive ListingStatus = "inactive"
)

// ManualSource marks listings entered by operators rather than crawled.
const ManualSource = "manual"

// BatchMode controls how a multi-partition batch executes.
type BatchMode string

// Batch execution modes.
const (
	BatchSequential BatchMode = "sequential"
	BatchParallel   BatchMode = "parallel"
)

// Partition is one unit of crawl work for a source. Region and Category are
// local slugs; adapters translate them to their native filter codes.
type Partition struct {
	Region   string `json:"region,omitempty"`
	Category string `json:"category,omitempty"`
	Keyword  string `json:"keyword,omitempty"`
}

// Key renders the partition for logs and audit rows.
func (p Partition) Key() string {
	key := p.Region + "/" + p.Category
	if p.Keyword != "" {
		key += "?" + p.Keyword
	}
	if key == "/" {
		return "all"
	}
	return key
}

// JobRecord is the standardized output of a source adapter for one posting.
type JobRecord struct {
	ExternalID string `json:"external_id"`
	Source     string `json:"source"`
	SourceURL  string `json:"source_url"`

	Title   string `json:"title"`
	Body    string `json:"body"`
	TitleEN string `json:"title_en,omitempty"`
	BodyEN  string `json:"body_en,omitempty"`

	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`
	Region   string `json:"region,omitempty"`
	Category string `json:"category,omitempty"`
	// PartitionCategory is the category asserted by the partition that
	// produced the record, kept even when the classifier overrides it.
	PartitionCategory string `json:"partition_category,omitempty"`

	JobType         string `json:"job_type,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`

	SalaryMin      *int   `json:"salary_min,omitempty"`
	SalaryMax      *int   `json:"salary_max,omitempty"`
	SalaryCurrency string `json:"salary_currency,omitempty"`
	SalaryPeriod   string `json:"salary_period,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	DeadlineAt  *time.Time `json:"deadline_at,omitempty"`

	IsVIP      bool `json:"is_vip"`
	IsFeatured bool `json:"is_featured"`

	ContentHash string `json:"content_hash"`

	SourceCategoryCode string `json:"source_category_code,omitempty"`
	SourceRegionCode   string `json:"source_region_code,omitempty"`

	// RawHTML is the primary detail page; it is archived, never persisted
	// on the listing row.
	RawHTML []byte `json:"-"`
}

// Listing is the persisted form of a JobRecord.
type Listing struct {
	ID int64 `json:"id"`
	JobRecord
	Status      ListingStatus `json:"status"`
	CategoryID  int64         `json:"category_id"`
	RegionID    *int64        `json:"region_id,omitempty"`
	FirstSeenAt time.Time     `json:"first_seen_at"`
	LastSeenAt  time.Time     `json:"last_seen_at"`
}

// ListingHints carries partition-derived metadata that an unchanged
// listing may still pick up on refresh.
type ListingHints struct {
	Location          string
	RegionID          *int64
	PartitionCategory string
}

// Lookups maps category and region slugs to their lookup-table ids.
type Lookups struct {
	Categories map[string]int64
	Regions    map[string]int64
}

// Category resolves slug to the slug and id a listing is stored under.
// Unknown slugs become "other"; ok is false when that is unknown too.
func (l Lookups) Category(slug string) (string, int64, bool) {
	if id, ok := l.Categories[slug]; ok && slug != "" {
		return slug, id, true
	}
	id, ok := l.Categories[OtherCategory]
	return OtherCategory, id, ok
}

// CategoryID is Category without the resolved slug.
func (l Lookups) CategoryID(slug string) (int64, bool) {
	_, id, ok := l.Category(slug)
	return id, ok
}

// RegionID resolves a region slug; nil when unknown.
func (l Lookups) RegionID(slug string) *int64 {
	if slug == "" {
		return nil
	}
	id, ok := l.Regions[slug]
	if !ok {
		return nil
	}
	return &id
}

// OtherCategory is the fallback category slug.
const OtherCategory = "other"

// JobProgress holds the monotonically increasing run counters.
type JobProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	New       int `json:"new"`
	Updated   int `json:"updated"`
}

// Record applies one item outcome to the counters.
func (p *JobProgress) Record(result ItemResult) {
	p.Processed++
	switch result {
	case ItemNew:
		p.New++
		p.Succeeded++
	case ItemUpdated:
		p.Updated++
		p.Succeeded++
	case ItemSkipped:
		p.Skipped++
	case ItemFailed:
		p.Failed++
	}
}

// CrawlJob is the job-control record for one crawl execution.
type CrawlJob struct {
	ID          string      `json:"id"`
	Kind        JobKind     `json:"kind"`
	Source      string      `json:"source"`
	Status      JobStatus   `json:"status"`
	Partitions  []Partition `json:"partitions,omitempty"`
	BatchID     string      `json:"batch_id,omitempty"`
	TriggeredBy string      `json:"triggered_by,omitempty"`
	Reason      string      `json:"reason,omitempty"`

	ShouldPause bool          `json:"should_pause"`
	ShouldStop  bool          `json:"should_stop"`
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	PausedTotal time.Duration `json:"paused_total"`

	Progress         JobProgress `json:"progress"`
	CurrentPartition string      `json:"current_partition,omitempty"`
	CurrentItem      string      `json:"current_item,omitempty"`

	Errors       []string `json:"errors,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CrawlItem is the append-only audit row for one processed posting.
type CrawlItem struct {
	ID          int64      `json:"id"`
	JobID       string     `json:"job_id"`
	ExternalID  string     `json:"external_id"`
	SourceURL   string     `json:"source_url"`
	Partition   Partition  `json:"partition"`
	Result      ItemResult `json:"result,omitempty"`
	SkipReason  string     `json:"skip_reason,omitempty"`
	ErrorText   string     `json:"error_text,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	ListingID   *int64     `json:"listing_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CrawlBatch groups the jobs created for a multi-partition run.
type CrawlBatch struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Mode        BatchMode  `json:"mode"`
	Status      JobStatus  `json:"status"`
	JobIDs      []string   `json:"job_ids"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	TriggeredBy string     `json:"triggered_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
