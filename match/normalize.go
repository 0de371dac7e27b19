// Package match provides text normalization and keyword matching for scans.
package match

import (
	"html"
	"strings"
)

// Normalize strips markup from raw text, decodes HTML entities, collapses
// runs of whitespace to single spaces, and trims leading/trailing space.
//
// Tag stripping is best effort: anything between '<' and the next '>' is
// dropped. An unterminated '<' is kept as literal text rather than
// swallowing the rest of the input.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		if raw[i] == '<' {
			end := strings.IndexByte(raw[i+1:], '>')
			if end < 0 {
				// Unterminated tag degrades to literal text
				b.WriteString(raw[i:])
				break
			}
			// Replace the tag with a space so adjacent words don't fuse
			b.WriteByte(' ')
			i += end + 1
			continue
		}
		b.WriteByte(raw[i])
	}

	return collapseWhitespace(html.UnescapeString(b.String()))
}

// collapseWhitespace reduces any run of whitespace to a single space and
// trims the edges.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
