// Package memory provides in-process stores for development runs and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/jobcontrol"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// ControlStore is an in-memory store.ControlStore.
type ControlStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.CrawlJob
	items   map[string][]crawler.CrawlItem
	batches map[string]crawler.CrawlBatch
	nextID  int64
}

// NewControlStore constructs an empty ControlStore.
func NewControlStore() *ControlStore {
	return &ControlStore{
		jobs:    make(map[string]crawler.CrawlJob),
		items:   make(map[string][]crawler.CrawlItem),
		batches: make(map[string]crawler.CrawlBatch),
	}
}

var _ store.ControlStore = (*ControlStore)(nil)

// CreateJob stores a new job.
func (s *ControlStore) CreateJob(_ context.Context, job crawler.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrConflict
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusPending
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by id.
func (s *ControlStore) GetJob(_ context.Context, id string) (crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return crawler.CrawlJob{}, store.ErrNotFound
	}
	return cloneJob(job), nil
}

// ListJobs returns matching jobs, newest first.
func (s *ControlStore) ListJobs(_ context.Context, filter store.JobFilter) ([]crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.CrawlJob
	for _, job := range s.jobs {
		if filter.Source != "" && job.Source != filter.Source {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// StartJob moves a pending job to running.
func (s *ControlStore) StartJob(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(job *crawler.CrawlJob) error {
		if !jobcontrol.Start(job, at) {
			return store.ErrConflict
		}
		return nil
	})
}

// UpdateProgress replaces the counters and live pointers. Control fields
// are left alone.
func (s *ControlStore) UpdateProgress(_ context.Context, id string, progress crawler.JobProgress, partition, item string) error {
	return s.mutate(id, func(job *crawler.CrawlJob) error {
		job.Progress = progress
		job.CurrentPartition = partition
		job.CurrentItem = item
		return nil
	})
}

// AppendError records a partition-level failure.
func (s *ControlStore) AppendError(_ context.Context, id string, message string) error {
	return s.mutate(id, func(job *crawler.CrawlJob) error {
		job.Errors = append(job.Errors, message)
		return nil
	})
}

// MarkPaused acknowledges a pause request.
func (s *ControlStore) MarkPaused(_ context.Context, id string, at time.Time) (bool, error) {
	var ok bool
	err := s.mutate(id, func(job *crawler.CrawlJob) error {
		ok = jobcontrol.MarkPaused(job, at)
		return nil
	})
	return ok, err
}

// FinishJob records the terminal status.
func (s *ControlStore) FinishJob(_ context.Context, id string, status crawler.JobStatus, message string, at time.Time) error {
	return s.mutate(id, func(job *crawler.CrawlJob) error {
		jobcontrol.Finish(job, status, message, at)
		return nil
	})
}

// Pause raises the pause flag on a running job.
func (s *ControlStore) Pause(_ context.Context, id string, at time.Time) (bool, error) {
	return s.apply(id, jobcontrol.ActionPause, at)
}

// Resume puts a paused job back to running.
func (s *ControlStore) Resume(_ context.Context, id string, at time.Time) (bool, error) {
	return s.apply(id, jobcontrol.ActionResume, at)
}

// Stop requests a graceful stop.
func (s *ControlStore) Stop(_ context.Context, id string, at time.Time) (bool, error) {
	return s.apply(id, jobcontrol.ActionStop, at)
}

// Cancel ends a job immediately.
func (s *ControlStore) Cancel(_ context.Context, id string, at time.Time) (bool, error) {
	return s.apply(id, jobcontrol.ActionCancel, at)
}

func (s *ControlStore) apply(id string, action jobcontrol.Action, at time.Time) (bool, error) {
	var ok bool
	err := s.mutate(id, func(job *crawler.CrawlJob) error {
		ok = jobcontrol.Apply(job, action, at)
		return nil
	})
	return ok, err
}

// CreateItem appends an audit row and returns its id.
func (s *ControlStore) CreateItem(_ context.Context, item crawler.CrawlItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[item.JobID]; !ok {
		return 0, store.ErrNotFound
	}
	s.nextID++
	item.ID = s.nextID
	s.items[item.JobID] = append(s.items[item.JobID], item)
	return item.ID, nil
}

// FinalizeItem writes the outcome of an item once.
func (s *ControlStore) FinalizeItem(_ context.Context, item crawler.CrawlItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.items[item.JobID]
	for i := range rows {
		if rows[i].ID != item.ID {
			continue
		}
		if rows[i].CompletedAt != nil {
			return store.ErrConflict
		}
		rows[i].Result = item.Result
		rows[i].SkipReason = item.SkipReason
		rows[i].ErrorText = item.ErrorText
		rows[i].StatusCode = item.StatusCode
		rows[i].ListingID = item.ListingID
		rows[i].ExternalID = item.ExternalID
		rows[i].SourceURL = item.SourceURL
		rows[i].CompletedAt = item.CompletedAt
		return nil
	}
	return store.ErrNotFound
}

// ListItems returns a job's items in processing order.
func (s *ControlStore) ListItems(_ context.Context, jobID string, limit, offset int) ([]crawler.CrawlItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := append([]crawler.CrawlItem(nil), s.items[jobID]...)
	return page(rows, limit, offset), nil
}

// CreateBatch stores a batch.
func (s *ControlStore) CreateBatch(_ context.Context, batch crawler.CrawlBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return store.ErrConflict
	}
	batch.JobIDs = append([]string(nil), batch.JobIDs...)
	s.batches[batch.ID] = batch
	return nil
}

// UpdateBatch replaces a batch.
func (s *ControlStore) UpdateBatch(_ context.Context, batch crawler.CrawlBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return store.ErrNotFound
	}
	batch.JobIDs = append([]string(nil), batch.JobIDs...)
	s.batches[batch.ID] = batch
	return nil
}

// GetBatch fetches a batch by id.
func (s *ControlStore) GetBatch(_ context.Context, id string) (crawler.CrawlBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return crawler.CrawlBatch{}, store.ErrNotFound
	}
	batch.JobIDs = append([]string(nil), batch.JobIDs...)
	return batch, nil
}

func (s *ControlStore) mutate(id string, fn func(*crawler.CrawlJob) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&job); err != nil {
		return err
	}
	s.jobs[id] = job
	return nil
}

func cloneJob(job crawler.CrawlJob) crawler.CrawlJob {
	job.Partitions = append([]crawler.Partition(nil), job.Partitions...)
	job.Errors = append([]string(nil), job.Errors...)
	return job
}

func page[T any](rows []T, limit, offset int) []T {
	limit = store.PageSize(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
