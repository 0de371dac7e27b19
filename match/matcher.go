package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match returns the subset of keywords that occur in at least one of the
// given text fields, preserving keyword order with at most one entry per
// keyword. Comparison is case-insensitive on both sides. A keyword only
// counts when it is not embedded inside a larger alphanumeric token; a
// multi-word keyword matches a contiguous, whitespace-normalized occurrence.
//
// Fields are expected to be normalized already (see Normalize). Empty or
// whitespace-only keywords never match.
func Match(keywords []string, fields ...string) []string {
	folded := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			folded = append(folded, strings.ToLower(f))
		}
	}

	var matched []string
	for _, kw := range keywords {
		needle := strings.ToLower(collapseWhitespace(kw))
		if needle == "" {
			continue
		}
		for _, text := range folded {
			if containsToken(text, needle) {
				matched = append(matched, kw)
				break
			}
		}
	}

	return matched
}

// containsToken reports whether needle occurs in text at a token boundary:
// the characters adjacent to the occurrence must not be letters or digits.
func containsToken(text, needle string) bool {
	for start := 0; start+len(needle) <= len(text); {
		idx := strings.Index(text[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		if boundaryBefore(text, idx) && boundaryAfter(text, idx+len(needle)) {
			return true
		}
		start = idx + 1
	}
	return false
}

func boundaryBefore(text string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:idx])
	return !isWordRune(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
