package content

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultCurrency is assumed when a salary carries no currency marker.
const DefaultCurrency = "GEL"

const (
	minPlausibleSalary = 50
	maxPlausibleSalary = 100_000
)

// Salary is a parsed salary range. Min and Max are nil when nothing
// plausible was found.
type Salary struct {
	Min      *int
	Max      *int
	Currency string
	Period   string
}

// Found reports whether a numeric salary was extracted.
func (s Salary) Found() bool {
	return s.Min != nil
}

type currencyMarker struct {
	code    string
	pattern *regexp.Regexp
}

var currencyMarkers = []currencyMarker{
	{code: "GEL", pattern: regexp.MustCompile(`(?i)₾|\bgel\b|ლარ`)},
	{code: "USD", pattern: regexp.MustCompile(`(?i)\$|\busd\b|დოლარ`)},
	{code: "EUR", pattern: regexp.MustCompile(`(?i)€|\beur\b|ევრო`)},
}

const (
	salaryNumber   = `(\d{1,3}(?:[ ,]\d{3})+|\d+)`
	salaryRangeSep = `\s*(?:-|–|—|to|დან)\s*`
	currencySuffix = `\s*(?:₾|\$|€|gel\b|usd\b|eur\b|ლარ|დოლარ|ევრო)`
)

var (
	// keyword then number, optionally a second number after a range separator.
	keywordSalaryPattern = regexp.MustCompile(
		`(?i)(?:salary|wage|pay|ხელფასი|ანაზღაურება|ხელფასით)[^\d]{0,24}?` +
			salaryNumber + `(?:` + salaryRangeSep + salaryNumber + `)?`,
	)
	// number (or range) followed by a currency marker.
	suffixSalaryPattern = regexp.MustCompile(
		`(?i)` + salaryNumber + `(?:` + salaryRangeSep + salaryNumber + `)?` + currencySuffix,
	)
	hourlyPattern = regexp.MustCompile(`(?i)per hour|hourly|/\s*h\b|საათში`)
	dailyPattern  = regexp.MustCompile(`(?i)per day|daily|დღეში`)
)

// ExtractSalary finds a salary range in free text. Ranges are returned in
// ascending order regardless of how the text lists them; values outside the
// plausibility band are discarded.
func ExtractSalary(text string) Salary {
	out := Salary{Currency: detectCurrency(text), Period: detectPeriod(text)}
	for _, pattern := range []*regexp.Regexp{keywordSalaryPattern, suffixSalaryPattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			values := plausibleValues(m[1], m[2])
			if len(values) == 0 {
				continue
			}
			lo, hi := values[0], values[0]
			if len(values) == 2 {
				lo, hi = min(values[0], values[1]), max(values[0], values[1])
			}
			out.Min, out.Max = &lo, &hi
			return out
		}
	}
	return out
}

func detectCurrency(text string) string {
	for _, marker := range currencyMarkers {
		if marker.pattern.MatchString(text) {
			return marker.code
		}
	}
	return DefaultCurrency
}

func detectPeriod(text string) string {
	switch {
	case hourlyPattern.MatchString(text):
		return "hour"
	case dailyPattern.MatchString(text):
		return "day"
	default:
		return "month"
	}
}

func plausibleValues(raw ...string) []int {
	values := make([]int, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			continue
		}
		n, err := strconv.Atoi(strings.NewReplacer(" ", "", ",", "").Replace(r))
		if err != nil || n < minPlausibleSalary || n > maxPlausibleSalary {
			continue
		}
		values = append(values, n)
	}
	return values
}
