package strx

import "strings"

// Coalesce returns s if non-empty, otherwise d.
func Coalesce(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// Unquote trims surrounding whitespace and then any double quotes.
func Unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
