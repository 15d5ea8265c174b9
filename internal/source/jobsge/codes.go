package jobsge

// code pairs a local slug with the board's numeric filter value. Order is
// the crawl order used when a partition leaves the dimension open.
type code struct {
	slug  string
	value string
}

// Location filter (lid).
var regionCodes = []code{
	{"tbilisi", "1"},
	{"adjara", "14"},
	{"imereti", "8"},
	{"kakheti", "3"},
	{"kvemo-kartli", "5"},
	{"shida-kartli", "6"},
	{"samegrelo", "9"},
	{"guria", "7"},
	{"samtskhe-javakheti", "4"},
	{"mtskheta-mtianeti", "2"},
	{"racha-lechkhumi", "10"},
	{"remote", "16"},
	{"abroad", "17"},
}

// Category filter (cid), keyed by the classifier's slugs.
var categoryCodes = []code{
	{"administration", "1"},
	{"sales", "2"},
	{"finance", "3"},
	{"marketing", "4"},
	{"logistics", "5"},
	{"it", "6"},
	{"legal", "7"},
	{"medicine", "8"},
	{"hospitality", "10"},
	{"construction", "11"},
	{"education", "12"},
	{"security", "13"},
	{"customer-service", "14"},
	{"cleaning", "16"},
}

func lookup(table []code, slug string) (string, bool) {
	for _, c := range table {
		if c.slug == slug {
			return c.value, true
		}
	}
	return "", false
}

func slugs(table []code) []string {
	out := make([]string, len(table))
	for i, c := range table {
		out[i] = c.slug
	}
	return out
}

// Regions lists the region slugs the board can filter by.
func Regions() []string {
	return slugs(regionCodes)
}
