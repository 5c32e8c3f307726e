package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// TruncationMarker ends every truncated post.
const TruncationMarker = "…"

const maxProductHashtags = 3

var (
	// ErrInvalidContent is returned for text that may not leave the process.
	ErrInvalidContent = errors.New("invalid content")

	markupPattern  = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?\s*>`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

	genericHashtags = []string{"#promo", "#sale", "#newproduct", "#shopping"}
)

// Sanitize normalizes text to NFC and rejects control characters and markup.
func Sanitize(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidContent)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = norm.NFC.String(text)

	for _, r := range text {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character %U", ErrInvalidContent, r)
		}
	}
	if tag := markupPattern.FindString(text); tag != "" {
		return "", fmt.Errorf("%w: markup %q", ErrInvalidContent, tag)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidContent)
	}
	return text, nil
}

// Truncate cuts text to at most limit runes including the marker. It cuts on
// the last word boundary when one exists in the second half of the budget.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	marker := utf8.RuneCountInString(TruncationMarker)
	if limit <= marker {
		return string([]rune(TruncationMarker)[:max(limit, 0)])
	}

	runes := []rune(text)
	cut := limit - marker
	if i := lastSpace(runes[:cut+1]); i > cut/2 {
		cut = i
	}
	head := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return head + TruncationMarker
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// Hashtags derives up to three tags from the words of title and pads with
// generic marketing tags, six at most.
func Hashtags(title string) []string {
	title = domain.SanitizeInput(title, 200)
	words := strings.Fields(nonWordPattern.ReplaceAllString(strings.ToLower(title), " "))

	seen := make(map[string]bool)
	tags := make([]string, 0, 6)
	for _, w := range words {
		if len(tags) == maxProductHashtags {
			break
		}
		if utf8.RuneCountInString(w) <= 2 || !isLetters(w) || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, "#"+w)
	}
	for _, g := range genericHashtags {
		if len(tags) == 6 {
			break
		}
		if !seen[g[1:]] {
			tags = append(tags, g)
		}
	}
	return tags
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Compose fits body and tags into limit runes. Tags are appended on their own
// paragraph only when the whole body fits with them; otherwise the body is
// truncated and the tags dropped.
func Compose(body string, tags []string, limit int) string {
	if len(tags) > 0 {
		withTags := body + "\n\n" + strings.Join(tags, " ")
		if utf8.RuneCountInString(withTags) <= limit {
			return withTags
		}
	}
	return Truncate(body, limit)
}
