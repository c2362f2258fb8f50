package utils

import (
	"strings"
	"unicode"
)

// FoldName lowercases a device name and drops control characters and
// surrounding whitespace.
func FoldName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.TrimSpace(s)
}

// StripNonAlnum removes every rune that is not a letter or digit. Used as the
// last fuzzy-matching stage so "Pixel_6_API_33" and "pixel6api33" compare
// equal.
func StripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NamesMatch applies the staged device-name matching rule:
// exact match after case folding, then containment either direction, then
// containment after stripping separators and other non-alphanumerics.
func NamesMatch(requested, candidate string) bool {
	a := FoldName(requested)
	b := FoldName(candidate)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	as := StripNonAlnum(a)
	bs := StripNonAlnum(b)
	if as == "" || bs == "" {
		return false
	}
	return as == bs || strings.Contains(as, bs) || strings.Contains(bs, as)
}

// TruncateString truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
