package content

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dottedDatePattern = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	monthDatePattern  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(\p{L}+)\.?(?:,?\s+(\d{4}))?`)
)

// monthNames holds every accepted month token, lowercased: English names
// and abbreviations, Georgian names in the nominative, genitive and dative
// forms boards print, and the Georgian abbreviations. Tokens must match
// whole.
var monthNames = buildMonthNames(map[time.Month][]string{
	time.January:   {"january", "jan", "იანვარი", "იანვრის", "იანვარს", "იან"},
	time.February:  {"february", "feb", "თებერვალი", "თებერვლის", "თებერვალს", "თებ"},
	time.March:     {"march", "mar", "მარტი", "მარტის", "მარტს", "მარ"},
	time.April:     {"april", "apr", "აპრილი", "აპრილის", "აპრილს", "აპრ"},
	time.May:       {"may", "მაისი", "მაისის", "მაისს", "მაი"},
	time.June:      {"june", "jun", "ივნისი", "ივნისის", "ივნისს", "ივნ"},
	time.July:      {"july", "jul", "ივლისი", "ივლისის", "ივლისს", "ივლ"},
	time.August:    {"august", "aug", "აგვისტო", "აგვისტოს", "აგვ"},
	time.September: {"september", "sept", "sep", "სექტემბერი", "სექტემბრის", "სექტემბერს", "სექ"},
	time.October:   {"october", "oct", "ოქტომბერი", "ოქტომბრის", "ოქტომბერს", "ოქტ"},
	time.November:  {"november", "nov", "ნოემბერი", "ნოემბრის", "ნოემბერს", "ნოე"},
	time.December:  {"december", "dec", "დეკემბერი", "დეკემბრის", "დეკემბერს", "დეკ"},
})

func buildMonthNames(in map[time.Month][]string) map[string]time.Month {
	out := make(map[string]time.Month)
	for month, names := range in {
		for _, name := range names {
			out[name] = month
		}
	}
	return out
}

// ExtractDate parses the first valid date in text, trying ISO, then
// DD.MM.YYYY, then "15 January [2025]" style month names. A month-name date
// without a year takes ref's year. Impossible calendar dates are skipped;
// ok is false when nothing parses.
func ExtractDate(text string, ref time.Time) (time.Time, bool) {
	for _, m := range isoDatePattern.FindAllStringSubmatch(text, -1) {
		if t, ok := buildDate(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	for _, m := range dottedDatePattern.FindAllStringSubmatch(text, -1) {
		if t, ok := buildDate(m[3], m[2], m[1]); ok {
			return t, true
		}
	}
	for _, m := range monthDatePattern.FindAllStringSubmatch(text, -1) {
		month, ok := lookupMonth(m[2])
		if !ok {
			continue
		}
		year := m[3]
		if year == "" {
			year = strconv.Itoa(ref.Year())
		}
		if t, ok := buildDate(year, strconv.Itoa(int(month)), m[1]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func lookupMonth(word string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(word)]
	return m, ok
}

func buildDate(year, month, day string) (time.Time, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 -> Mar 2); reject those.
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}
