package queryengine

import (
	"regexp"
	"strings"
)

const snippetWindow = 220
const snippetLeading = 60

var snippetWhitespace = regexp.MustCompile(`\s+`)
var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// queryTokens splits query into the lowercased, non-empty alphanumeric
// tokens used for snippet centering. FTS queries are tokenized the same
// way by tablestore's fTSTerms.
func queryTokens(query string) []string {
	var out []string
	for _, tok := range tokenSplit.Split(strings.ToLower(query), -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// renderSnippet collapses contentText to a single normalized line and,
// when it exceeds snippetWindow chars, centers a window on the first
// occurrence of any query token.
func renderSnippet(contentText, query string) string {
	normalized := strings.TrimSpace(snippetWhitespace.ReplaceAllString(strings.ToLower(contentText), " "))
	if len(normalized) <= snippetWindow {
		return normalized
	}

	pos := -1
	for _, tok := range queryTokens(query) {
		if idx := strings.Index(normalized, tok); idx >= 0 && (pos == -1 || idx < pos) {
			pos = idx
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - snippetLeading
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(normalized) {
		end = len(normalized)
		start = end - snippetWindow
		if start < 0 {
			start = 0
		}
	}

	window := normalized[start:end]
	if start > 0 {
		window = "..." + window
	}
	if end < len(normalized) {
		window = window + "..."
	}
	return window
}
