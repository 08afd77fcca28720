package blog

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// wordsPerMinute is the average adult reading speed used for the
// reading-time estimate.
const wordsPerMinute = 228

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// PlainText strips all tags from an HTML fragment and normalizes
// whitespace, for excerpt and word-count purposes.
func PlainText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var parts []string
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			if text := strings.TrimSpace(tokenizer.Token().Data); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Excerpt truncates plain text to at most maxLen runes, appending an
// ellipsis when it had to cut.
func Excerpt(plain string, maxLen int) string {
	runes := []rune(plain)
	if len(runes) <= maxLen {
		return plain
	}
	return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
}

// ReadingTime estimates minutes to read the given plain text, never less
// than one minute.
func ReadingTime(plain string) int {
	words := len(strings.Fields(plain))
	minutes := (words + wordsPerMinute/2) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
