package validators

import "strings"

// SanitizeString collapses runs of whitespace and cuts the result to maxLen
// runes. maxLen <= 0 means no limit.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 {
		return clean
	}
	if r := []rune(clean); len(r) > maxLen {
		return strings.TrimSpace(string(r[:maxLen]))
	}
	return clean
}
