package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "case and whitespace", in: "  Senior   GO\tDeveloper \n", want: "senior go developer"},
		{name: "markup", in: "<p>Hello <b>World</b></p><!-- hidden -->", want: "hello world"},
		{name: "entities", in: "Tom &amp; Jerry", want: "tom jerry"},
		{name: "georgian kept", in: "ვებ-დეველოპერი, თბილისი!", want: "ვებ დეველოპერი თბილისი"},
		{name: "punctuation dropped", in: "C#/.NET (remote)", want: "c net remote"},
		{name: "cyrillic dropped", in: "Java разработчик", want: "java"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestContentHashSensitivity(t *testing.T) {
	t.Parallel()

	base := ContentHash("Go Developer", "Build crawlers in Batumi.", "Acme")
	require.Len(t, base, 64)

	require.Equal(t, base, ContentHash("go developer", "build   CRAWLERS in batumi", "ACME"),
		"case and whitespace must not change the hash")
	require.NotEqual(t, base, ContentHash("Go Engineer", "Build crawlers in Batumi.", "Acme"),
		"title change must change the hash")
	require.NotEqual(t, base, ContentHash("Go Developer", "Build scrapers in Batumi.", "Acme"),
		"body change must change the hash")
	require.NotEqual(t, base, ContentHash("Go Developer", "Build crawlers in Batumi.", ""))
}

func TestExtractSalary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		min, max int
		currency string
		period   string
	}{
		{name: "reversed range", in: "3000-2000 GEL", min: 2000, max: 3000, currency: "GEL", period: "month"},
		{name: "keyword single", in: "ხელფასი: 1500 ლარი", min: 1500, max: 1500, currency: "GEL", period: "month"},
		{name: "keyword range", in: "Salary from 1 200 to 1 800 USD", min: 1200, max: 1800, currency: "USD", period: "month"},
		{name: "symbol suffix", in: "Pay is 900₾ monthly", min: 900, max: 900, currency: "GEL", period: "month"},
		{name: "hourly", in: "60 - 80 € per hour", min: 60, max: 80, currency: "EUR", period: "hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractSalary(tt.in)
			require.True(t, got.Found())
			assert.Equal(t, tt.min, *got.Min)
			assert.Equal(t, tt.max, *got.Max)
			assert.Equal(t, tt.currency, got.Currency)
			assert.Equal(t, tt.period, got.Period)
		})
	}
}

func TestExtractSalaryRejectsImplausible(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"No salary information",
		"Office at 12 Rustaveli ave",
		"Salary 5000000 GEL",
		"Salary 10 GEL",
	} {
		got := ExtractSalary(in)
		require.False(t, got.Found(), in)
		require.Nil(t, got.Max, in)
		require.Equal(t, DefaultCurrency, got.Currency, in)
	}
}

func TestExtractDate(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{name: "iso", in: "published 2025-01-15", want: date(2025, 1, 15), ok: true},
		{name: "dotted", in: "ბოლო ვადა: 20.02.2025", want: date(2025, 2, 20), ok: true},
		{name: "georgian month no year", in: "12 იანვარი", want: date(2025, 1, 12), ok: true},
		{name: "english month with year", in: "Deadline 3 March, 2024", want: date(2024, 3, 3), ok: true},
		{name: "invalid iso falls through", in: "2025-02-30 or 01.03.2025", want: date(2025, 3, 1), ok: true},
		{name: "invalid only", in: "31.02.2025", ok: false},
		{name: "no date", in: "apply now", ok: false},
		{name: "georgian genitive", in: "15 სექტემბრის ჩათვლით", want: date(2025, 9, 15), ok: true},
		{name: "english abbreviation", in: "posted 7 Feb.", want: date(2025, 2, 7), ok: true},
		{name: "prose with english month prefix", in: "We need 5 marketing specialists", ok: false},
		{name: "prose with georgian month prefix", in: "2 სექტორში", ok: false},
		{name: "prose with decimal prefix", in: "3 decades of experience", ok: false},
		{name: "longer number is not a day", in: "125 march", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractDate(tt.in, ref)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestClassifyCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		body  string
		want  string
	}{
		{name: "no match falls back", title: "Mystery role", body: "Nothing to see", want: "other"},
		{name: "empty input", title: "", body: "", want: "other"},
		{name: "body-only keyword below threshold", title: "Open position", body: "we need a developer", want: "other"},
		{name: "title-only keyword accepted", title: "Developer", body: "join us", want: "it"},
		{name: "phrase beats generic keyword", title: "IT Support Specialist", body: "", want: "it"},
		{name: "generic support", title: "Support agent", body: "", want: "customer-service"},
		{name: "georgian inflection", title: "გაყიდვების მენეჯერი", body: "", want: "sales"},
		{name: "no in-word hits", title: "Within reach", body: "smart items", want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyCategory(tt.title, tt.body)
			require.NotEmpty(t, got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTieGoesToEarlierRow(t *testing.T) {
	t.Parallel()

	table := []Category{
		{Slug: "first", Keywords: []string{"shared"}},
		{Slug: "second", Keywords: []string{"shared"}},
	}
	require.Equal(t, "first", classify(table, "Shared role", ""))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDetectAttributes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "part-time", DetectJobType("Cashier, part-time, evenings"))
	require.Equal(t, "full-time", DetectJobType("სრული განაკვეთი, ბათუმი"))
	require.Equal(t, "internship", DetectJobType("Summer internship for students"))
	require.Equal(t, "", DetectJobType("Go developer"))
	require.Equal(t, "", DetectJobType("international company"), "whole words only")

	require.Equal(t, "senior", DetectExperienceLevel("Senior Go Developer"))
	require.Equal(t, "junior", DetectExperienceLevel("გამოცდილების გარეშე"))
	require.Equal(t, "", DetectExperienceLevel("Accountant"))
}
