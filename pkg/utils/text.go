package utils

import "strings"

// Clip returns s cut to at most maxRunes runes. If maxRunes is 0 or negative,
// returns s unchanged.
func Clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// CollapseSpaces replaces every run of whitespace in s with a single space
// and trims leading/trailing whitespace.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
