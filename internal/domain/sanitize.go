package domain

import (
	"strings"
	"unicode/utf8"
)

var inputStripper = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

// SanitizeInput strips markup-significant characters from user-provided or
// scraped text, cuts it to max runes and trims surrounding space.
func SanitizeInput(s string, max int) string {
	s = inputStripper.Replace(s)
	s = strings.ToValidUTF8(s, "")
	if max > 0 && utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return strings.TrimSpace(s)
}
