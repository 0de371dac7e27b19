package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "strips simple tags",
			input: "<p>hello <b>world</b></p>",
			want:  "hello world",
		},
		{
			name:  "tags act as word separators",
			input: "first<br/>second",
			want:  "first second",
		},
		{
			name:  "decodes entities",
			input: "fish &amp; chips &lt;cheap&gt;",
			want:  "fish & chips <cheap>",
		},
		{
			name:  "collapses whitespace",
			input: "  too \t many\n\n spaces  ",
			want:  "too many spaces",
		},
		{
			name:  "unterminated tag stays literal",
			input: "before <a href=oops after",
			want:  "before <a href=oops after",
		},
		{
			name:  "attributes are dropped with the tag",
			input: `<a href="https://example.com">link text</a>`,
			want:  "link text",
		},
		{
			name:  "nested markup",
			input: "<div><ul><li>one</li><li>two</li></ul></div>",
			want:  "one two",
		},
		{
			name:  "only markup yields empty string",
			input: "<p></p><br/>",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_MalformedDoesNotConsumeRemainder(t *testing.T) {
	// A stray '<' near the start must not swallow the rest of the text
	got := Normalize("broken < markup but these words survive")
	assert.Contains(t, got, "words survive")
}
