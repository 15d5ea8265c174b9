// Package source defines the adapter contract every job board implements
// and the generic list-then-detail driver that runs an adapter over one
// partition.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/dedupe"
)

// ErrUnknownPartition is returned by DiscoverPartitions for a region or
// category the source has no filter code for.
var ErrUnknownPartition = errors.New("unknown partition")

// Fetcher is the subset of the fetch client adapters need.
type Fetcher interface {
	GetText(ctx context.Context, rawURL string, params url.Values) (string, error)
}

// ListEntry is one posting as it appears on a list page.
type ListEntry struct {
	ExternalID string
	URL        string
	Title      string
	Company    string
	Location   string
	IsVIP      bool
	IsFeatured bool
}

// ListPage is the parsed result of one list page. Last is set when the
// page says there is nothing after it. Dropped counts entries the adapter
// filtered out, so a page of already-seen postings does not end the run.
type ListPage struct {
	Entries []ListEntry
	Dropped int
	Last    bool
}

// Adapter turns partitions of one job board into JobRecords. Adapters only
// implement the primitives; Run drives them.
type Adapter interface {
	Name() string
	// DiscoverPartitions expands requested into crawlable partitions. An
	// empty request means everything the source offers.
	DiscoverPartitions(ctx context.Context, requested []crawler.Partition) ([]crawler.Partition, error)
	FetchListPage(ctx context.Context, p crawler.Partition, page int) (ListPage, error)
	// FetchDetail returns the record for entry. A *crawler.SkipError
	// reports a benign content problem.
	FetchDetail(ctx context.Context, entry ListEntry, p crawler.Partition) (*crawler.JobRecord, error)
	// DetailURL resolves an external id without a list page, for re-parse.
	DetailURL(externalID string) string
}

// Deps are the per-run collaborators handed to adapter factories. Seen,
// Logger and Clock are optional.
type Deps struct {
	Client Fetcher
	Seen   dedupe.Set
	Logger *zap.Logger
	Clock  crawler.Clock
}

// Now returns the dependency clock's time, or the wall clock.
func (d Deps) Now() time.Time {
	if d.Clock != nil {
		return d.Clock.Now()
	}
	return time.Now().UTC()
}

// Log returns the logger or a no-op one.
func (d Deps) Log() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// SeenKey is the seen-set key of one posting. Every adapter dedupes on it,
// so a posting listed in several partitions or pages is handled once.
func SeenKey(src, externalID string) string {
	return src + ":" + externalID
}

// MarkIfNew consults the seen-set for the posting. Without a set, or when
// it fails, every posting counts as new.
func (d Deps) MarkIfNew(ctx context.Context, src, externalID string) bool {
	if d.Seen == nil {
		return true
	}
	key := SeenKey(src, externalID)
	fresh, err := d.Seen.MarkIfNew(ctx, key)
	if err != nil {
		d.Log().Warn("seen-set lookup failed", zap.String("key", key), zap.Error(err))
		return true
	}
	return fresh
}

// Limits caps one partition run. Zero means unlimited.
type Limits struct {
	MaxPages int
	MaxJobs  int
}

// Item is handed to the callback once per discovered posting, in discovery
// order. Exactly one of Record and Err is set unless the adapter returned
// neither.
type Item struct {
	Entry  ListEntry
	Record *crawler.JobRecord
	Err    error
}

// Callback processes one item. A non-nil return stops the run and is
// returned from Run unchanged.
type Callback func(ctx context.Context, item Item) error

// Run lists pages of p until an empty page, a Last page or the page limit,
// fetching each entry's detail and passing it to fn as soon as it is
// available. It returns how many items were handed to fn.
func Run(ctx context.Context, a Adapter, p crawler.Partition, limits Limits, fn Callback) (int, error) {
	emitted := 0
	for page := 1; limits.MaxPages <= 0 || page <= limits.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		list, err := a.FetchListPage(ctx, p, page)
		if err != nil {
			return emitted, fmt.Errorf("%s: list page %d of %s: %w", a.Name(), page, p.Key(), err)
		}
		if len(list.Entries) == 0 && list.Dropped == 0 {
			return emitted, nil
		}
		for _, entry := range list.Entries {
			if limits.MaxJobs > 0 && emitted >= limits.MaxJobs {
				return emitted, nil
			}
			record, detailErr := a.FetchDetail(ctx, entry, p)
			emitted++
			if err := fn(ctx, Item{Entry: entry, Record: record, Err: detailErr}); err != nil {
				return emitted, err
			}
		}
		if list.Last {
			return emitted, nil
		}
	}
	return emitted, nil
}

// Collect runs p and buffers every successfully fetched record.
func Collect(ctx context.Context, a Adapter, p crawler.Partition, limits Limits) ([]*crawler.JobRecord, error) {
	var records []*crawler.JobRecord
	_, err := Run(ctx, a, p, limits, func(_ context.Context, item Item) error {
		if item.Err == nil && item.Record != nil {
			records = append(records, item.Record)
		}
		return nil
	})
	return records, err
}
