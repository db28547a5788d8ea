// ABOUTME: Signal normalization for duplicate detection
// ABOUTME: Canonical forms for profile URLs, emails, phones and names
package dedupe

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeURL lowercases a profile URL and strips scheme, www., query, fragment and
// trailing slashes so equivalent links compare equal.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	host := strings.TrimPrefix(u.Host, "www.")
	path := strings.TrimRight(u.Path, "/")
	return host + path
}

// NormalizeEmail converts email to lowercase for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits only, using the last ten so country prefixes do not matter.
// Numbers shorter than seven digits are ignored.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 7 {
		return ""
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// NormalizeName folds diacritics, lowercases and collapses whitespace.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SplitName returns normalized first and last names, deriving them from the full name
// when the explicit fields are empty.
func SplitName(first, last, full string) (string, string) {
	first, last = NormalizeName(first), NormalizeName(last)
	if first != "" && last != "" {
		return first, last
	}
	parts := strings.Fields(NormalizeName(full))
	if len(parts) == 0 {
		return first, last
	}
	if first == "" {
		first = parts[0]
	}
	if last == "" && len(parts) > 1 {
		last = parts[len(parts)-1]
	}
	return first, last
}
