package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_BoundaryRules(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		text     string
		want     []string
	}{
		{
			name:     "whole word matches",
			keywords: []string{"AI"},
			text:     "New AI breakthroughs",
			want:     []string{"AI"},
		},
		{
			name:     "substring inside larger word does not match",
			keywords: []string{"AI"},
			text:     "Aid agencies respond",
			want:     nil,
		},
		{
			name:     "case insensitive both sides",
			keywords: []string{"Python"},
			text:     "writing PYTHON scripts",
			want:     []string{"Python"},
		},
		{
			name:     "bounded by punctuation",
			keywords: []string{"tech"},
			text:     "the future of tech, apparently",
			want:     []string{"tech"},
		},
		{
			name:     "bounded by string edges",
			keywords: []string{"tech"},
			text:     "tech",
			want:     []string{"tech"},
		},
		{
			name:     "digit boundary blocks match",
			keywords: []string{"tech"},
			text:     "tech9 conference",
			want:     nil,
		},
		{
			name:     "phrase matches contiguous words",
			keywords: []string{"machine learning"},
			text:     "advances in machine learning research",
			want:     []string{"machine learning"},
		},
		{
			name:     "phrase does not match across other words",
			keywords: []string{"machine learning"},
			text:     "machine that is learning",
			want:     nil,
		},
		{
			name:     "later occurrence rescues boundary failure",
			keywords: []string{"AI"},
			text:     "Aid groups and AI labs",
			want:     []string{"AI"},
		},
		{
			name:     "empty keyword never matches",
			keywords: []string{"", "  "},
			text:     "anything at all",
			want:     nil,
		},
		{
			name:     "no match returns empty",
			keywords: []string{"rust", "golang"},
			text:     "cooking recipes for the weekend",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.keywords, tt.text))
		})
	}
}

func TestMatch_TitleAndDescription(t *testing.T) {
	title := "New AI breakthroughs"
	description := "Researchers unveil machine learning models"

	got := Match([]string{"AI", "machine learning"}, title, description)
	assert.Equal(t, []string{"AI", "machine learning"}, got)
}

func TestMatch_OneEntryPerKeyword(t *testing.T) {
	// Keyword present in both fields appears once in the result
	got := Match([]string{"tech"}, "tech news", "more tech coverage")
	assert.Equal(t, []string{"tech"}, got)
}

func TestMatch_PreservesKeywordOrder(t *testing.T) {
	got := Match([]string{"zebra", "apple", "tech"}, "tech for the apple zebra")
	assert.Equal(t, []string{"zebra", "apple", "tech"}, got)
}

func TestMatch_PreservesKeywordCase(t *testing.T) {
	// Stored casing comes back even though matching folds case
	got := Match([]string{"Python"}, "learning python today")
	assert.Equal(t, []string{"Python"}, got)
}

func TestMatch_PhraseWhitespaceNormalized(t *testing.T) {
	// Extra whitespace inside the configured phrase is collapsed before matching
	got := Match([]string{"machine   learning"}, "new machine learning models")
	assert.Equal(t, []string{"machine   learning"}, got)
}

func TestMatch_UnicodeBoundaries(t *testing.T) {
	assert.Empty(t, Match([]string{"été"}, "répétée"), "embedded in a larger word")
	assert.Equal(t, []string{"été"}, Match([]string{"été"}, "un été chaud"))
}
