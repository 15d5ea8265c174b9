package source

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/tulashvilimindia/batumi.work/internal/hash/sha256"
)

// CanonicalURL lowercases scheme and host and drops query, fragment and a
// trailing slash. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}

// ExtractExternalID returns the first all-digit path segment of raw, or a
// stable hash of the canonical URL when there is none.
func ExtractExternalID(raw string) string {
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		for _, seg := range strings.Split(u.Path, "/") {
			if isDigits(seg) {
				return seg
			}
		}
	}
	return sha256.Sum(CanonicalURL(raw))
}

// ResolveURL resolves href against base, returning href unchanged on error.
func ResolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
