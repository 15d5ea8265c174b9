package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// ListingStore implements store.ListingStore over the jobs table.
type ListingStore struct {
	pool querier
}

// NewListingStore wraps a pool.
func NewListingStore(pool querier) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

var _ store.ListingStore = (*ListingStore)(nil)

// Close releases the pool.
func (s *ListingStore) Close() {
	s.pool.Close()
}

// LoadLookups reads the category and region slug tables.
func (s *ListingStore) LoadLookups(ctx context.Context) (crawler.Lookups, error) {
	l := crawler.Lookups{Categories: map[string]int64{}, Regions: map[string]int64{}}
	if err := s.loadSlugs(ctx, `SELECT slug, id FROM categories`, l.Categories); err != nil {
		return crawler.Lookups{}, fmt.Errorf("load categories: %w", err)
	}
	if err := s.loadSlugs(ctx, `SELECT slug, id FROM regions`, l.Regions); err != nil {
		return crawler.Lookups{}, fmt.Errorf("load regions: %w", err)
	}
	return l, nil
}

func (s *ListingStore) loadSlugs(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			slug string
			id   int64
		)
		if err := rows.Scan(&slug, &id); err != nil {
			return err
		}
		into[slug] = id
	}
	return rows.Err()
}

const selectListing = `
SELECT j.id, j.source, j.external_id, j.source_url,
	j.title_ge, j.body_ge, j.title_en, j.body_en,
	j.company_name, j.location, COALESCE(r.slug, ''), COALESCE(c.slug, ''), j.partition_category,
	j.job_type, j.experience_level,
	j.salary_min, j.salary_max, j.salary_currency, j.salary_period,
	j.published_at, j.deadline_at, j.is_vip, j.is_featured,
	j.content_hash, j.source_category_code, j.source_region_code,
	j.status, j.category_id, j.region_id, j.first_seen_at, j.last_seen_at
FROM jobs j
LEFT JOIN categories c ON c.id = j.category_id
LEFT JOIN regions r ON r.id = j.region_id
WHERE j.source = $1 AND j.external_id = $2`

// FindListing looks a listing up by (source, external_id).
func (s *ListingStore) FindListing(ctx context.Context, source, externalID string) (crawler.Listing, error) {
	var (
		l      crawler.Listing
		status string
	)
	err := s.pool.QueryRow(ctx, selectListing, source, externalID).Scan(
		&l.ID, &l.Source, &l.ExternalID, &l.SourceURL,
		&l.Title, &l.Body, &l.TitleEN, &l.BodyEN,
		&l.Company, &l.Location, &l.Region, &l.Category, &l.PartitionCategory,
		&l.JobType, &l.ExperienceLevel,
		&l.SalaryMin, &l.SalaryMax, &l.SalaryCurrency, &l.SalaryPeriod,
		&l.PublishedAt, &l.DeadlineAt, &l.IsVIP, &l.IsFeatured,
		&l.ContentHash, &l.SourceCategoryCode, &l.SourceRegionCode,
		&status, &l.CategoryID, &l.RegionID, &l.FirstSeenAt, &l.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Listing{}, store.ErrNotFound
	}
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("find listing %s/%s: %w", source, externalID, err)
	}
	l.Status = crawler.ListingStatus(status)
	return l, nil
}

// InsertListing adds a listing. A concurrent insert of the same key
// surfaces as store.ErrDuplicate.
func (s *ListingStore) InsertListing(ctx context.Context, l crawler.Listing) (int64, error) {
	if l.Status == "" {
		l.Status = crawler.ListingActive
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO jobs (
	source, external_id, source_url, title_ge, body_ge, title_en, body_en,
	company_name, location, region_id, category_id, partition_category,
	job_type, experience_level, salary_min, salary_max, salary_currency, salary_period,
	published_at, deadline_at, is_vip, is_featured,
	content_hash, source_category_code, source_region_code,
	status, first_seen_at, last_seen_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28
)
RETURNING id`,
		l.Source, l.ExternalID, l.SourceURL, l.Title, l.Body, l.TitleEN, l.BodyEN,
		l.Company, l.Location, l.RegionID, l.CategoryID, l.PartitionCategory,
		l.JobType, l.ExperienceLevel, l.SalaryMin, l.SalaryMax, l.SalaryCurrency, l.SalaryPeriod,
		l.PublishedAt, l.DeadlineAt, l.IsVIP, l.IsFeatured,
		l.ContentHash, l.SourceCategoryCode, l.SourceRegionCode,
		string(l.Status), l.FirstSeenAt, l.LastSeenAt,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return 0, store.ErrDuplicate
		}
		return 0, fmt.Errorf("insert listing %s/%s: %w", l.Source, l.ExternalID, err)
	}
	return id, nil
}

// TouchListing bumps last_seen_at and fills location and region only where
// the row has none.
func (s *ListingStore) TouchListing(ctx context.Context, id int64, seenAt time.Time, hints crawler.ListingHints) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET
	last_seen_at = $2,
	location = COALESCE(NULLIF(location, ''), $3),
	region_id = COALESCE(region_id, $4),
	partition_category = COALESCE(NULLIF($5, ''), partition_category)
WHERE id = $1`,
		id, seenAt, hints.Location, hints.RegionID, hints.PartitionCategory)
	if err != nil {
		return fmt.Errorf("touch listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// OverwriteListing replaces the content columns and reactivates the row.
// first_seen_at is never rewritten.
func (s *ListingStore) OverwriteListing(ctx context.Context, l crawler.Listing) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET
	source_url = $2, title_ge = $3, body_ge = $4, title_en = $5, body_en = $6,
	company_name = $7, location = $8, region_id = $9, category_id = $10, partition_category = $11,
	job_type = $12, experience_level = $13, salary_min = $14, salary_max = $15,
	salary_currency = $16, salary_period = $17, published_at = $18, deadline_at = $19,
	is_vip = $20, is_featured = $21, content_hash = $22,
	source_category_code = $23, source_region_code = $24,
	status = 'active', last_seen_at = $25
WHERE id = $1`,
		l.ID, l.SourceURL, l.Title, l.Body, l.TitleEN, l.BodyEN,
		l.Company, l.Location, l.RegionID, l.CategoryID, l.PartitionCategory,
		l.JobType, l.ExperienceLevel, l.SalaryMin, l.SalaryMax,
		l.SalaryCurrency, l.SalaryPeriod, l.PublishedAt, l.DeadlineAt,
		l.IsVIP, l.IsFeatured, l.ContentHash,
		l.SourceCategoryCode, l.SourceRegionCode, l.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("overwrite listing %d: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeactivateStale marks listings of source not seen since olderThan
// inactive. Manual listings are never touched.
func (s *ListingStore) DeactivateStale(ctx context.Context, source string, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET status = 'inactive'
WHERE status = 'active' AND source <> 'manual' AND ($1 = '' OR source = $1) AND last_seen_at < $2`,
		source, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountUnqueued counts active listings with no channel_message_queue row.
func (s *ListingStore) CountUnqueued(ctx context.Context, source string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM jobs j
WHERE j.status = 'active' AND ($1 = '' OR j.source = $1)
	AND NOT EXISTS (SELECT 1 FROM channel_message_queue q WHERE q.job_id = j.id)`,
		source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unqueued listings: %w", err)
	}
	return n, nil
}
