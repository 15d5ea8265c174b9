package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML wraps goquery's reader constructor.
func ParseHTML(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the selection's text with runs of whitespace collapsed.
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// BlockText keeps paragraph breaks: each non-empty line is trimmed and
// inner whitespace collapsed.
func BlockText(s *goquery.Selection) string {
	lines := strings.Split(s.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// HasPageLink reports whether any anchor in doc points at page via the
// query parameter param.
func HasPageLink(doc *goquery.Document, param string, page int) bool {
	want := strconv.Itoa(page)
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if u.Query().Get(param) == want {
			found = true
			return false
		}
		return true
	})
	return found
}
