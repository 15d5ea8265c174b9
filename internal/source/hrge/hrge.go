// Package hrge crawls hr.ge. The board offers plain pagination only, so
// the category comes from the classifier and the region from the posting's
// location text.
package hrge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tulashvilimindia/batumi.work/internal/content"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/source"
)

// Name is the source name stored on listings.
const Name = "hrge"

const defaultBaseURL = "https://www.hr.ge"

// Adapter implements source.Adapter for hr.ge.
type Adapter struct {
	deps    source.Deps
	baseURL string
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at another host.
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

// DiscoverPartitions returns one pagination-only partition per request. A
// region in the request filters postings by their location instead of the
// list query.
func (a *Adapter) DiscoverPartitions(_ context.Context, requested []crawler.Partition) ([]crawler.Partition, error) {
	if len(requested) == 0 {
		return []crawler.Partition{{}}, nil
	}
	out := make([]crawler.Partition, 0, len(requested))
	for _, p := range requested {
		if p.Category != "" {
			return nil, fmt.Errorf("hrge has no category filter (%q): %w", p.Category, source.ErrUnknownPartition)
		}
		if p.Region != "" && !knownRegion(p.Region) {
			return nil, fmt.Errorf("hrge region %q: %w", p.Region, source.ErrUnknownPartition)
		}
		out = append(out, p)
	}
	return out, nil
}

// FetchListPage loads one results page.
func (a *Adapter) FetchListPage(ctx context.Context, p crawler.Partition, page int) (source.ListPage, error) {
	listURL := a.baseURL + "/search-posting"
	params := url.Values{"pg": {strconv.Itoa(page)}}
	if p.Keyword != "" {
		params.Set("q", p.Keyword)
	}
	body, err := a.deps.Client.GetText(ctx, listURL, params)
	if err != nil {
		return source.ListPage{}, err
	}
	doc, err := source.ParseHTML(body)
	if err != nil {
		return source.ListPage{}, err
	}
	result := source.ListPage{Last: !source.HasPageLink(doc, "pg", page+1)}
	doc.Find(".search-results .announcement-item").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a.title").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		abs := source.ResolveURL(listURL, href)
		entry := source.ListEntry{
			ExternalID: source.ExtractExternalID(abs),
			URL:        abs,
			Title:      source.Text(link),
			Company:    source.Text(item.Find(".company").First()),
			Location:   source.Text(item.Find(".location").First()),
			IsVIP:      item.HasClass("vip"),
			IsFeatured: item.HasClass("featured"),
		}
		if outsideRegion(p, entry.Location) || !a.deps.MarkIfNew(ctx, Name, entry.ExternalID) {
			result.Dropped++
			return
		}
		result.Entries = append(result.Entries, entry)
	})
	return result, nil
}

// outsideRegion reports a known location that contradicts the partition's
// region filter. Unknown locations are decided after the detail fetch.
func outsideRegion(p crawler.Partition, location string) bool {
	if p.Region == "" {
		return false
	}
	region := RegionForLocation(location)
	return region != "" && region != p.Region
}

// FetchDetail loads and parses one announcement.
func (a *Adapter) FetchDetail(ctx context.Context, entry source.ListEntry, p crawler.Partition) (*crawler.JobRecord, error) {
	detailURL := entry.URL
	if detailURL == "" {
		detailURL = a.DetailURL(entry.ExternalID)
	}
	body, err := a.deps.Client.GetText(ctx, detailURL, nil)
	if err != nil {
		return nil, err
	}
	doc, err := source.ParseHTML(body)
	if err != nil {
		return nil, err
	}
	ann := doc.Find("article.announcement").First()
	title := source.Text(ann.Find("h1.announcement-title").First())
	if title == "" {
		return nil, crawler.NewSkip(crawler.SkipMissingTitle)
	}
	details := ann.Find(".announcement-details")
	location := source.Text(details.Find(".location").First())
	if location == "" {
		location = entry.Location
	}
	region := RegionForLocation(location)
	if p.Region != "" && region != p.Region {
		return nil, crawler.NewSkip(crawler.SkipRegionFiltered)
	}
	company := source.Text(ann.Find(".announcement-company").First())
	if company == "" {
		company = entry.Company
	}
	text := source.BlockText(ann.Find(".announcement-description").First())
	salary := content.ExtractSalary(source.Text(details.Find(".salary").First()))
	now := a.deps.Now()

	id := entry.ExternalID
	if id == "" {
		id = source.ExtractExternalID(detailURL)
	}
	rec := &crawler.JobRecord{
		ExternalID:      id,
		Source:          Name,
		SourceURL:       detailURL,
		Title:           title,
		Body:            text,
		Company:         company,
		Location:        location,
		Region:          region,
		Category:        content.ClassifyCategory(title, text),
		JobType:         content.DetectJobType(source.Text(details.Find(".employment").First()) + " " + title),
		ExperienceLevel: content.DetectExperienceLevel(title),
		SalaryMin:       salary.Min,
		SalaryMax:       salary.Max,
		SalaryCurrency:  salary.Currency,
		SalaryPeriod:    salary.Period,
		PublishedAt:     parseDate(details.Find(".published").First(), now),
		DeadlineAt:      parseDate(details.Find(".deadline").First(), now),
		IsVIP:           entry.IsVIP,
		IsFeatured:      entry.IsFeatured,
		RawHTML:         []byte(body),
	}
	rec.ContentHash = content.ContentHash(rec.Title, rec.Body, rec.Company)
	return rec, nil
}

func parseDate(s *goquery.Selection, now time.Time) *time.Time {
	t, ok := content.ExtractDate(source.Text(s), now)
	if !ok {
		return nil
	}
	return &t
}

// DetailURL implements source.Adapter. The slug segment is optional.
func (a *Adapter) DetailURL(externalID string) string {
	return a.baseURL + "/announcement/" + url.PathEscape(externalID)
}
