package indexbuild

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SummaryLength is the number of runes kept by ExtractSummary.
const SummaryLength = 150

var (
	leadingFrontMatter = regexp.MustCompile(`(?s)^\s*---.*?---`)
	markdownLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	markdownMarks      = regexp.MustCompile("[#*`~>]")
	newlines           = regexp.MustCompile(`\n+`)
)

// ExtractSummary derives a plain-text summary from a Markdown body: front
// matter is dropped, links become their text, heading/emphasis/code/quote
// marks are removed and newlines collapse to spaces. Text longer than
// length runes is cut and suffixed with "...".
func ExtractSummary(body string, length int) string {
	text := PlainText(body)
	if utf8.RuneCountInString(text) <= length {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:length])) + "..."
}

// PlainText applies ExtractSummary's cleanup without truncating.
func PlainText(body string) string {
	text := leadingFrontMatter.ReplaceAllString(body, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = markdownMarks.ReplaceAllString(text, "")
	text = newlines.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
