package content

import "strings"

type marker struct {
	value string
	terms []string
}

// Checked in order; the first hit wins.
var jobTypeMarkers = []marker{
	{"internship", []string{"internship", "intern", "სტაჟირება", "სტაჟიორი"}},
	{"part-time", []string{"part time", "part-time", "ნახევარი განაკვეთი", "არასრული განაკვეთი"}},
	{"contract", []string{"contract", "freelance", "project based", "კონტრაქტი", "პროექტზე"}},
	{"remote", []string{"remote", "დისტანციური", "დისტანციურად"}},
	{"full-time", []string{"full time", "full-time", "სრული განაკვეთი"}},
}

var experienceMarkers = []marker{
	{"senior", []string{"senior", "lead", "head of", "უფროსი"}},
	{"junior", []string{"junior", "entry level", "trainee", "უმცროსი", "გამოცდილების გარეშე"}},
	{"middle", []string{"middle", "mid level"}},
}

// DetectJobType returns the employment type named in text, or "".
func DetectJobType(text string) string {
	return firstMarker(jobTypeMarkers, text)
}

// DetectExperienceLevel returns senior, junior or middle when text says so.
func DetectExperienceLevel(text string) string {
	return firstMarker(experienceMarkers, text)
}

func firstMarker(table []marker, text string) string {
	padded := paddedTokens(text)
	for _, m := range table {
		for _, term := range m.terms {
			if strings.Contains(padded, " "+Normalize(term)+" ") {
				return m.value
			}
		}
	}
	return ""
}
