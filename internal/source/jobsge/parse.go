package jobsge

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tulashvilimindia/batumi.work/internal/content"
	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/source"
)

// parseList reads the job table. last is true when the pager has no link
// to the following page.
func parseList(body, listURL string, page int) ([]source.ListEntry, bool, error) {
	doc, err := source.ParseHTML(body)
	if err != nil {
		return nil, false, err
	}
	var entries []source.ListEntry
	doc.Find("#job_list_table tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`a[href*="view=jobs"]`).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		abs := source.ResolveURL(listURL, href)
		id := idFromURL(abs)
		if id == "" {
			return
		}
		entries = append(entries, source.ListEntry{
			ExternalID: id,
			URL:        abs,
			Title:      source.Text(link),
			Company:    source.Text(row.Find(`a[href*="view=client"]`).First()),
			IsVIP:      row.HasClass("vip") || row.Find(`img[src*="vip"]`).Length() > 0,
		})
	})
	return entries, !source.HasPageLink(doc, "page", page+1), nil
}

// idFromURL prefers the id query parameter and falls back to the shared
// path-based extraction.
func idFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if id := strings.TrimSpace(u.Query().Get("id")); id != "" {
			return id
		}
	}
	return source.ExtractExternalID(raw)
}

type detail struct {
	title     string
	body      string
	company   string
	location  string
	jobType   string
	salary    content.Salary
	published *time.Time
	deadline  *time.Time
}

func parseDetail(body string, now time.Time) (detail, error) {
	doc, err := source.ParseHTML(body)
	if err != nil {
		return detail{}, err
	}
	job := doc.Find("#job")
	meta := job.Find(".job-meta")
	d := detail{
		title:    source.Text(job.Find("h1.job-title").First()),
		body:     source.BlockText(job.Find(".job-body").First()),
		company:  source.Text(job.Find(".job-company").First()),
		location: source.Text(meta.Find(".location").First()),
		jobType:  source.Text(meta.Find(".job-type").First()),
		salary:   content.ExtractSalary(source.Text(meta.Find(".salary").First())),
	}
	if d.jobType == "" {
		d.jobType = content.DetectJobType(d.title + " " + d.body)
	} else {
		d.jobType = content.DetectJobType(d.jobType)
	}
	if t, ok := content.ExtractDate(source.Text(meta.Find(".published").First()), now); ok {
		d.published = &t
	}
	if t, ok := content.ExtractDate(source.Text(meta.Find(".deadline").First()), now); ok {
		d.deadline = &t
	}
	return d, nil
}

// record builds the JobRecord; region and category come from the partition.
func (d detail) record(entry source.ListEntry, p crawler.Partition) *crawler.JobRecord {
	company := d.company
	if company == "" {
		company = entry.Company
	}
	id := entry.ExternalID
	if id == "" {
		id = idFromURL(entry.URL)
	}
	rec := &crawler.JobRecord{
		ExternalID:        id,
		Title:             d.title,
		Body:              d.body,
		Company:           company,
		Location:          d.location,
		Region:            p.Region,
		Category:          p.Category,
		PartitionCategory: p.Category,
		JobType:           d.jobType,
		ExperienceLevel:   content.DetectExperienceLevel(d.title),
		SalaryMin:         d.salary.Min,
		SalaryMax:         d.salary.Max,
		SalaryCurrency:    d.salary.Currency,
		SalaryPeriod:      d.salary.Period,
		PublishedAt:       d.published,
		DeadlineAt:        d.deadline,
		IsVIP:             entry.IsVIP,
	}
	rec.ContentHash = content.ContentHash(rec.Title, rec.Body, rec.Company)
	return rec
}
