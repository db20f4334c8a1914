package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var zeroWidthReplacer = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// NormalizeLine collapses runs of whitespace into single spaces, strips
// zero-width characters, and trims the result. Subtitle renderers emit both
// liberally.
func NormalizeLine(text string) string {
	text = zeroWidthReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// Slugify converts a title into a lowercase hyphen-separated token suitable
// for use in identifiers and cache keys. Runs of non-alphanumeric characters
// collapse to a single hyphen.
func Slugify(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}

var titleCaser = cases.Title(language.English)

// DeslugTitle reverses a URL slug into a display title: hyphens and
// underscores become spaces and each word is title-cased.
func DeslugTitle(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}
	replaced := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return titleCaser.String(strings.Join(strings.Fields(replaced), " "))
}

// ClampTail returns at most limit characters from the end of text. Caption
// context keeps the most recent dialogue, so the head is the part to drop.
func ClampTail(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[len(runes)-limit:])
}

// StripHTML removes tags and unescapes the non-breaking spaces that episode
// metadata summaries arrive with. It is intentionally crude: summaries are
// short paragraphs, not documents.
func StripHTML(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	out := strings.ReplaceAll(b.String(), "&nbsp;", " ")
	out = strings.ReplaceAll(out, "&amp;", "&")
	out = strings.ReplaceAll(out, "&quot;", `"`)
	out = strings.ReplaceAll(out, "&#39;", "'")
	return strings.Join(strings.Fields(out), " ")
}

// TruncateRunes shortens text to at most limit runes, appending an ellipsis
// marker when truncation happened.
func TruncateRunes(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	trimmed := strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace)
	return trimmed + "..."
}
