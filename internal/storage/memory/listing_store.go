package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

type listingKey struct {
	source     string
	externalID string
}

// ListingStore is an in-memory store.ListingStore. The (source,
// external_id) map key plays the role of the unique constraint.
type ListingStore struct {
	mu       sync.RWMutex
	lookups  crawler.Lookups
	listings map[int64]crawler.Listing
	byKey    map[listingKey]int64
	queued   map[int64]struct{}
	nextID   int64
}

// NewListingStore builds a store with the given lookup tables.
func NewListingStore(lookups crawler.Lookups) *ListingStore {
	return &ListingStore{
		lookups:  lookups,
		listings: make(map[int64]crawler.Listing),
		byKey:    make(map[listingKey]int64),
		queued:   make(map[int64]struct{}),
	}
}

var _ store.ListingStore = (*ListingStore)(nil)

// DefaultLookups seeds ids for slugs in order, starting at 1.
func DefaultLookups(categories, regions []string) crawler.Lookups {
	l := crawler.Lookups{Categories: map[string]int64{}, Regions: map[string]int64{}}
	for i, slug := range categories {
		l.Categories[slug] = int64(i + 1)
	}
	for i, slug := range regions {
		l.Regions[slug] = int64(i + 1)
	}
	return l
}

// LoadLookups returns a copy of the lookup tables.
func (s *ListingStore) LoadLookups(context.Context) (crawler.Lookups, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := crawler.Lookups{Categories: map[string]int64{}, Regions: map[string]int64{}}
	for k, v := range s.lookups.Categories {
		out.Categories[k] = v
	}
	for k, v := range s.lookups.Regions {
		out.Regions[k] = v
	}
	return out, nil
}

// FindListing looks a listing up by its idempotency key.
func (s *ListingStore) FindListing(_ context.Context, source, externalID string) (crawler.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[listingKey{source, externalID}]
	if !ok {
		return crawler.Listing{}, store.ErrNotFound
	}
	return s.listings[id], nil
}

// InsertListing stores a new listing or returns store.ErrDuplicate.
func (s *ListingStore) InsertListing(_ context.Context, listing crawler.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := listingKey{listing.Source, listing.ExternalID}
	if _, exists := s.byKey[key]; exists {
		return 0, store.ErrDuplicate
	}
	s.nextID++
	listing.ID = s.nextID
	listing.RawHTML = nil
	s.listings[listing.ID] = listing
	s.byKey[key] = listing.ID
	return listing.ID, nil
}

// TouchListing refreshes last_seen and fills hints the listing lacks.
func (s *ListingStore) TouchListing(_ context.Context, id int64, seenAt time.Time, hints crawler.ListingHints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return store.ErrNotFound
	}
	l.LastSeenAt = seenAt
	if hints.Location != "" && l.Location == "" {
		l.Location = hints.Location
	}
	if hints.RegionID != nil && l.RegionID == nil {
		l.RegionID = hints.RegionID
	}
	if hints.PartitionCategory != "" {
		l.PartitionCategory = hints.PartitionCategory
	}
	s.listings[id] = l
	return nil
}

// OverwriteListing replaces content and forces the listing active. The
// first-seen time is kept.
func (s *ListingStore) OverwriteListing(_ context.Context, listing crawler.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.listings[listing.ID]
	if !ok {
		return store.ErrNotFound
	}
	listing.FirstSeenAt = old.FirstSeenAt
	listing.Status = crawler.ListingActive
	listing.RawHTML = nil
	s.listings[listing.ID] = listing
	return nil
}

// DeactivateStale flips old active listings of source to inactive.
func (s *ListingStore) DeactivateStale(_ context.Context, source string, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.listings {
		if l.Status != crawler.ListingActive || l.Source == crawler.ManualSource {
			continue
		}
		if source != "" && l.Source != source {
			continue
		}
		if !l.LastSeenAt.Before(olderThan) {
			continue
		}
		l.Status = crawler.ListingInactive
		s.listings[id] = l
		n++
	}
	return n, nil
}

// CountUnqueued counts active listings never queued for publishing.
func (s *ListingStore) CountUnqueued(_ context.Context, source string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for id, l := range s.listings {
		if l.Status != crawler.ListingActive || (source != "" && l.Source != source) {
			continue
		}
		if _, queued := s.queued[id]; !queued {
			n++
		}
	}
	return n, nil
}

// MarkQueued records that the publisher picked a listing up. Only the
// downstream publisher does this in production.
func (s *ListingStore) MarkQueued(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[id] = struct{}{}
}

// Listings returns a snapshot of every stored listing.
func (s *ListingStore) Listings() []crawler.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Listing, 0, len(s.listings))
	for id := int64(1); id <= s.nextID; id++ {
		if l, ok := s.listings[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
