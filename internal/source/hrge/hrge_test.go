package hrge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/dedupe"
	"github.com/tulashvilimindia/batumi.work/internal/fetch"
	"github.com/tulashvilimindia/batumi.work/internal/source"
)

const resultsPage1 = `<html><body><div class="search-results">
  <div class="announcement-item vip">
    <a class="title" href="/announcement/5001/go-developer">Go Developer</a>
    <span class="company">Acme</span><span class="location">ბათუმი</span>
  </div>
  <div class="announcement-item featured">
    <a class="title" href="/announcement/5002/accountant">ბუღალტერი</a>
    <span class="company">Bank</span><span class="location">თბილისი</span>
  </div>
  <div class="announcement-item">
    <a class="title" href="/announcement/5003/waiter">Waiter</a>
    <span class="company">Hotel</span>
  </div>
</div>
<ul class="pagination"><li><a href="/search-posting?pg=2">2</a></li></ul>
</body></html>`

const resultsPage2 = `<html><body><div class="search-results"></div></body></html>`

const announcement5001 = `<html><body><article class="announcement">
  <h1 class="announcement-title">Senior Go Developer</h1>
  <div class="announcement-company">Acme</div>
  <ul class="announcement-details">
    <li class="location">ბათუმი, აჭარა</li>
    <li class="salary">2500 - 3500 USD</li>
    <li class="employment">Full time</li>
    <li class="published">2025-02-10</li>
    <li class="deadline">10 მარტი</li>
  </ul>
  <div class="announcement-description"><p>Build backend services in Go.</p><p>Kubernetes is a plus.</p></div>
</article></body></html>`

const announcement5002 = `<html><body><article class="announcement">
  <h1 class="announcement-title">ბუღალტერი</h1>
  <ul class="announcement-details"><li class="location">თბილისი</li></ul>
  <div class="announcement-description">ბუღალტრული აღრიცხვა, ფინანსური ანგარიშგება</div>
</article></body></html>`

const announcement5003 = `<html><body><article class="announcement">
  <h1 class="announcement-title">Waiter</h1>
  <ul class="announcement-details"><li class="location">Kobuleti beach</li></ul>
  <div class="announcement-description">Restaurant service, evening shifts</div>
</article></body></html>`

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	return newAdapterWith(t, nil, resultsPage2)
}

// newAdapterWith serves resultsPage1 then page2, deduping through seen.
func newAdapterWith(t *testing.T, seen dedupe.Set, page2 string) *Adapter {
	t.Helper()
	pages := map[string]string{
		"/announcement/5001/go-developer": announcement5001,
		"/announcement/5002/accountant":   announcement5002,
		"/announcement/5003/waiter":       announcement5003,
		"/announcement/5001":              announcement5001,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search-posting" {
			if r.URL.Query().Get("pg") == "1" {
				_, _ = io.WriteString(w, resultsPage1)
				return
			}
			_, _ = io.WriteString(w, page2)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	client := fetch.New(fetch.Config{Timeout: 2 * time.Second, MaxAttempts: 1}, nil)
	t.Cleanup(client.Close)
	return New(source.Deps{Client: client, Seen: seen, Clock: clockAt(2025, time.March, 1)}, WithBaseURL(srv.URL))
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func clockAt(y int, m time.Month, d int) crawler.Clock {
	return fixedClock{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func TestRegionForLocation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ბათუმი":            "adjara",
		"Batumi":            "adjara",
		"ქ. თბილისი, ვაკე":  "tbilisi",
		"Kutaisi, Imereti":  "imereti",
		"Kobuleti beach":    "adjara",
		"დისტანციური":       "remote",
		"":                  "",
		"Berlin":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, RegionForLocation(in), in)
	}
}

func TestDiscoverPartitions(t *testing.T) {
	t.Parallel()

	a := New(source.Deps{})
	ctx := context.Background()

	parts, err := a.DiscoverPartitions(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []crawler.Partition{{}}, parts)

	parts, err = a.DiscoverPartitions(ctx, []crawler.Partition{{Region: "adjara"}})
	require.NoError(t, err)
	require.Equal(t, "adjara", parts[0].Region)

	_, err = a.DiscoverPartitions(ctx, []crawler.Partition{{Category: "it"}})
	require.ErrorIs(t, err, source.ErrUnknownPartition)
	_, err = a.DiscoverPartitions(ctx, []crawler.Partition{{Region: "narnia"}})
	require.ErrorIs(t, err, source.ErrUnknownPartition)
}

func TestRunAllPostings(t *testing.T) {
	t.Parallel()

	a := newAdapter(t)
	records, err := source.Collect(context.Background(), a, crawler.Partition{}, source.Limits{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	goDev := records[0]
	assert.Equal(t, "5001", goDev.ExternalID)
	assert.Equal(t, Name, goDev.Source)
	assert.True(t, strings.HasSuffix(goDev.SourceURL, "/announcement/5001/go-developer"))
	assert.Equal(t, "Senior Go Developer", goDev.Title)
	assert.Equal(t, "Build backend services in Go.Kubernetes is a plus.", strings.ReplaceAll(goDev.Body, "\n", ""))
	assert.Equal(t, "adjara", goDev.Region)
	assert.Equal(t, "it", goDev.Category)
	assert.Empty(t, goDev.PartitionCategory)
	assert.Equal(t, "full-time", goDev.JobType)
	assert.Equal(t, "senior", goDev.ExperienceLevel)
	require.NotNil(t, goDev.SalaryMin)
	assert.Equal(t, 2500, *goDev.SalaryMin)
	assert.Equal(t, 3500, *goDev.SalaryMax)
	assert.Equal(t, "USD", goDev.SalaryCurrency)
	require.NotNil(t, goDev.PublishedAt)
	assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), *goDev.PublishedAt)
	require.NotNil(t, goDev.DeadlineAt)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), *goDev.DeadlineAt)
	assert.True(t, goDev.IsVIP)
	assert.Equal(t, "ბათუმი, აჭარა", goDev.Location)
	assert.Empty(t, goDev.SourceRegionCode, "hr.ge has no native region code")

	accountant := records[1]
	assert.Equal(t, "tbilisi", accountant.Region)
	assert.Equal(t, "finance", accountant.Category)
	assert.Equal(t, "Bank", accountant.Company, "company falls back to the list item")
	assert.True(t, accountant.IsFeatured)
	assert.Nil(t, accountant.SalaryMin)

	waiter := records[2]
	assert.Equal(t, "adjara", waiter.Region, "substring fallback")
	assert.Equal(t, "hospitality", waiter.Category)
}

func TestRepeatedPostingIsDropped(t *testing.T) {
	t.Parallel()

	shifted := `<html><body><div class="search-results">
  <div class="announcement-item vip">
    <a class="title" href="/announcement/5001/go-developer">Go Developer</a>
    <span class="company">Acme</span><span class="location">ბათუმი</span>
  </div>
</div></body></html>`
	seen := dedupe.NewMemorySet()
	a := newAdapterWith(t, seen, shifted)
	records, err := source.Collect(context.Background(), a, crawler.Partition{}, source.Limits{})
	require.NoError(t, err)
	require.Len(t, records, 3, "5001 shifted onto page 2 is fetched once")

	fresh, err := seen.MarkIfNew(context.Background(), source.SeenKey(Name, "5003"))
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestRegionFilter(t *testing.T) {
	t.Parallel()

	a := newAdapter(t)
	var kept []string
	var skipped []string
	n, err := source.Run(context.Background(), a, crawler.Partition{Region: "adjara"}, source.Limits{}, func(_ context.Context, item source.Item) error {
		if reason, ok := crawler.SkipReason(item.Err); ok {
			skipped = append(skipped, reason)
			return nil
		}
		require.NoError(t, item.Err)
		kept = append(kept, item.Record.ExternalID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n, "the Tbilisi posting is dropped from the list page")
	require.Equal(t, []string{"5001", "5003"}, kept)
	require.Empty(t, skipped)
}

func TestReparseByDetailURL(t *testing.T) {
	t.Parallel()

	a := newAdapter(t)
	rec, err := a.FetchDetail(context.Background(), source.ListEntry{ExternalID: "5001", URL: a.DetailURL("5001")}, crawler.Partition{})
	require.NoError(t, err)
	require.Equal(t, "5001", rec.ExternalID)
	require.Equal(t, "Senior Go Developer", rec.Title)

	_, err = a.FetchDetail(context.Background(), source.ListEntry{ExternalID: "404", URL: a.DetailURL("404")}, crawler.Partition{})
	require.True(t, fetch.IsNotFound(err))
}
