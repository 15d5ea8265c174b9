// Package content holds the pure text helpers used to compare, hash and
// classify postings: normalization, content hashing, salary and date
// extraction, and keyword-scored category classification.
package content

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/tulashvilimindia/batumi.work/internal/hash/sha256"
)

var (
	markupPattern = regexp.MustCompile(`(?s)<!--.*?-->|<[^>]*>`)
	hasher        = sha256.New()
)

// Normalize folds text into the comparison form used for hashing and
// keyword matching: markup stripped, NFKC, lowercased, everything outside
// Latin letters, digits and the Georgian script replaced by a single space.
// The result is never meant for display.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = markupPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if !keepRune(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case unicode.IsDigit(r):
		return true
	case unicode.Is(unicode.Georgian, r) && unicode.IsLetter(r):
		return true
	default:
		return false
	}
}

// ContentHash digests the normalized title, body and optional company. Case
// and whitespace changes do not alter the digest; any word change does.
func ContentHash(title, body, company string) string {
	parts := []string{Normalize(title), Normalize(body)}
	if c := Normalize(company); c != "" {
		parts = append(parts, c)
	}
	// sha256.Hasher never fails.
	sum, _ := hasher.Hash([]byte(strings.Join(parts, "\x1f")))
	return sum
}
