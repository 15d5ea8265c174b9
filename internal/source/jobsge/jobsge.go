// Package jobsge crawls jobs.ge. The board filters by location and category
// id, so every partition is a region × category pair and the partition
// asserts both for the postings it lists.
package jobsge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/source"
)

// Name is the source name stored on listings.
const Name = "jobsge"

const defaultBaseURL = "https://jobs.ge"

// Adapter implements source.Adapter for jobs.ge.
type Adapter struct {
	deps    source.Deps
	baseURL string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another host, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(a *Adapter) {
		a.baseURL = strings.TrimRight(base, "/")
	}
}

// New builds an adapter.
func New(deps source.Deps, opts ...Option) *Adapter {
	a := &Adapter{deps: deps, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factory registers the adapter with a source.Registry.
func Factory(deps source.Deps) source.Adapter {
	return New(deps)
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// DiscoverPartitions expands open dimensions: an empty region means every
// location, an empty category every category.
func (a *Adapter) DiscoverPartitions(_ context.Context, requested []crawler.Partition) ([]crawler.Partition, error) {
	if len(requested) == 0 {
		requested = []crawler.Partition{{}}
	}
	var out []crawler.Partition
	seen := make(map[string]struct{})
	for _, req := range requested {
		regions, err := expand(regionCodes, req.Region, "region")
		if err != nil {
			return nil, err
		}
		categories, err := expand(categoryCodes, req.Category, "category")
		if err != nil {
			return nil, err
		}
		for _, r := range regions {
			for _, c := range categories {
				p := crawler.Partition{Region: r, Category: c, Keyword: req.Keyword}
				if _, dup := seen[p.Key()]; dup {
					continue
				}
				seen[p.Key()] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func expand(table []code, slug, dimension string) ([]string, error) {
	if slug == "" {
		return slugs(table), nil
	}
	if _, ok := lookup(table, slug); !ok {
		return nil, fmt.Errorf("jobsge %s %q: %w", dimension, slug, source.ErrUnknownPartition)
	}
	return []string{slug}, nil
}

// FetchListPage loads one filtered list page. Postings already handed out
// in this run are dropped.
func (a *Adapter) FetchListPage(ctx context.Context, p crawler.Partition, page int) (source.ListPage, error) {
	listURL := a.baseURL + "/ge/"
	params := url.Values{"page": {strconv.Itoa(page)}}
	if lid, ok := lookup(regionCodes, p.Region); ok {
		params.Set("lid", lid)
	}
	if cid, ok := lookup(categoryCodes, p.Category); ok {
		params.Set("cid", cid)
	}
	if p.Keyword != "" {
		params.Set("q", p.Keyword)
	}
	body, err := a.deps.Client.GetText(ctx, listURL, params)
	if err != nil {
		return source.ListPage{}, err
	}
	entries, last, err := parseList(body, listURL, page)
	if err != nil {
		return source.ListPage{}, err
	}
	result := source.ListPage{Last: last}
	for _, e := range entries {
		if !a.deps.MarkIfNew(ctx, Name, e.ExternalID) {
			result.Dropped++
			continue
		}
		result.Entries = append(result.Entries, e)
	}
	return result, nil
}

// FetchDetail loads the Georgian detail page and, best effort, its English
// mirror.
func (a *Adapter) FetchDetail(ctx context.Context, entry source.ListEntry, p crawler.Partition) (*crawler.JobRecord, error) {
	detailURL := entry.URL
	if detailURL == "" {
		detailURL = a.DetailURL(entry.ExternalID)
	}
	body, err := a.deps.Client.GetText(ctx, detailURL, nil)
	if err != nil {
		return nil, err
	}
	d, err := parseDetail(body, a.deps.Now())
	if err != nil {
		return nil, err
	}
	if d.title == "" {
		return nil, crawler.NewSkip(crawler.SkipMissingTitle)
	}

	rec := d.record(entry, p)
	rec.Source = Name
	rec.SourceURL = detailURL
	rec.RawHTML = []byte(body)
	if code, ok := lookup(categoryCodes, p.Category); ok {
		rec.SourceCategoryCode = code
	}
	if code, ok := lookup(regionCodes, p.Region); ok {
		rec.SourceRegionCode = code
	}

	a.fetchMirror(ctx, detailURL, rec)
	return rec, nil
}

func (a *Adapter) fetchMirror(ctx context.Context, detailURL string, rec *crawler.JobRecord) {
	enURL := englishURL(detailURL)
	if enURL == detailURL {
		return
	}
	body, err := a.deps.Client.GetText(ctx, enURL, nil)
	if err != nil {
		a.deps.Log().Debug("english mirror unavailable",
			zap.String("external_id", rec.ExternalID),
			zap.Error(err),
		)
		return
	}
	en, err := parseDetail(body, a.deps.Now())
	if err != nil {
		return
	}
	rec.TitleEN = en.title
	rec.BodyEN = en.body
}

// DetailURL implements source.Adapter.
func (a *Adapter) DetailURL(externalID string) string {
	return a.baseURL + "/ge/?view=jobs&id=" + url.QueryEscape(externalID)
}

func englishURL(detailURL string) string {
	return strings.Replace(detailURL, "/ge/", "/en/", 1)
}
