package hrge

import (
	"strings"

	"github.com/tulashvilimindia/batumi.work/internal/content"
)

// locationRegions maps normalized location words to region slugs. Exact
// matches are tried first, then the first row contained in the text.
var locationRegions = []struct {
	location string
	region   string
}{
	{"ბათუმი", "adjara"},
	{"batumi", "adjara"},
	{"ქობულეთი", "adjara"},
	{"kobuleti", "adjara"},
	{"აჭარა", "adjara"},
	{"adjara", "adjara"},
	{"თბილისი", "tbilisi"},
	{"tbilisi", "tbilisi"},
	{"ქუთაისი", "imereti"},
	{"kutaisi", "imereti"},
	{"იმერეთი", "imereti"},
	{"რუსთავი", "kvemo-kartli"},
	{"rustavi", "kvemo-kartli"},
	{"გორი", "shida-kartli"},
	{"gori", "shida-kartli"},
	{"ზუგდიდი", "samegrelo"},
	{"zugdidi", "samegrelo"},
	{"ფოთი", "samegrelo"},
	{"poti", "samegrelo"},
	{"თელავი", "kakheti"},
	{"telavi", "kakheti"},
	{"კახეთი", "kakheti"},
	{"ოზურგეთი", "guria"},
	{"ozurgeti", "guria"},
	{"ახალციხე", "samtskhe-javakheti"},
	{"akhaltsikhe", "samtskhe-javakheti"},
	{"მცხეთა", "mtskheta-mtianeti"},
	{"mtskheta", "mtskheta-mtianeti"},
	{"ამბროლაური", "racha-lechkhumi"},
	{"დისტანციური", "remote"},
	{"remote", "remote"},
}

// RegionForLocation resolves free location text to a region slug, or ""
// when nothing matches.
func RegionForLocation(location string) string {
	norm := content.Normalize(location)
	if norm == "" {
		return ""
	}
	for _, row := range locationRegions {
		if norm == row.location {
			return row.region
		}
	}
	for _, row := range locationRegions {
		if strings.Contains(norm, row.location) {
			return row.region
		}
	}
	return ""
}

func knownRegion(slug string) bool {
	for _, row := range locationRegions {
		if row.region == slug {
			return true
		}
	}
	return false
}
