package content

import "strings"

const (
	phraseTitleScore  = 5
	phraseBodyScore   = 2
	keywordTitleScore = 3
	keywordBodyScore  = 1

	minClassifierScore = 3
)

// FallbackCategory is returned when nothing scores high enough.
const FallbackCategory = "other"

// Category is one row of the classification table.
type Category struct {
	Slug     string
	Phrases  []string
	Keywords []string
}

// ClassifyCategory scores title and body against the category table and
// returns the best slug, or "other" when no category reaches the minimum
// score. Phrases are scored first so multi-word terms can outweigh the
// generic single words they contain. Ties go to the earlier table row.
func ClassifyCategory(title, body string) string {
	return classify(categories, title, body)
}

func classify(table []Category, title, body string) string {
	t := paddedTokens(title)
	b := paddedTokens(body)

	best, bestScore := FallbackCategory, 0
	for _, cat := range table {
		score := 0
		for _, phrase := range cat.Phrases {
			score += scoreTerm(t, b, phrase, phraseTitleScore, phraseBodyScore)
		}
		for _, kw := range cat.Keywords {
			score += scoreTerm(t, b, kw, keywordTitleScore, keywordBodyScore)
		}
		if score > bestScore {
			best, bestScore = cat.Slug, score
		}
	}
	if bestScore < minClassifierScore {
		return FallbackCategory
	}
	return best
}

// paddedTokens returns normalized text wrapped in spaces so a term can be
// matched at a word start with a plain substring search.
func paddedTokens(text string) string {
	return " " + Normalize(text) + " "
}

// scoreTerm matches term at a word start, which tolerates the suffixes
// Georgian attaches to nouns while avoiding hits inside unrelated words.
func scoreTerm(title, body, term string, inTitle, inBody int) int {
	needle := " " + Normalize(term)
	score := 0
	if strings.Contains(title, needle) {
		score += inTitle
	}
	if strings.Contains(body, needle) {
		score += inBody
	}
	return score
}

// Categories returns the classifier table slugs in tie-break order,
// followed by "other".
func Categories() []string {
	out := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		out = append(out, c.Slug)
	}
	return append(out, FallbackCategory)
}
