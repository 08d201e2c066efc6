package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
		{
			name: "whitespace only",
			raw:  "  \n\t\n  ",
			want: "",
		},
		{
			name: "plain text passes through",
			raw:  "Just a plain sentence.",
			want: "Just a plain sentence.",
		},
		{
			name: "html tags are stripped",
			raw:  "<p>Hello <strong>world</strong></p>",
			want: "Hello world",
		},
		{
			name: "markdown emphasis is unwrapped",
			raw:  "Some **bold** and *italic* and __underscored__ and ~~struck~~ text",
			want: "Some bold and italic and underscored and struck text",
		},
		{
			name: "links keep their text",
			raw:  "See [the docs](https://example.com/docs) for more",
			want: "See the docs for more",
		},
		{
			name: "images keep their alt text",
			raw:  "Diagram: ![flow chart](images/flow.png)",
			want: "Diagram: flow chart",
		},
		{
			name: "heading markers survive",
			raw:  "# Binary Search\n\nHalve the interval each step.",
			want: "# Binary Search\n\nHalve the interval each step.",
		},
		{
			name: "math delimiters survive",
			raw:  "The derivative is $$f'(x) = 2x$$",
			want: "The derivative is $$f'(x) = 2x$$",
		},
		{
			name: "code fences and bodies stay literal",
			raw:  "Before\n```python\ndef f(x):\n    return **not bold** x\n```\nAfter",
			want: "Before\n```python\ndef f(x):\n    return **not bold** x\n```\nAfter",
		},
		{
			name: "runs of blank lines collapse to one",
			raw:  "First\n\n\n\nSecond",
			want: "First\n\nSecond",
		},
		{
			name: "interior whitespace collapses",
			raw:  "Too   many\t\tspaces",
			want: "Too many spaces",
		},
		{
			name: "surrounding blank lines are trimmed",
			raw:  "\n\nContent\n\n",
			want: "Content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_idempotent(t *testing.T) {
	inputs := []string{
		"<div># Title\n\n**Bold** [link](u)</div>",
		"```go\nfunc main() {}\n```",
		"Plain\n\n\ntext with   spaces",
		"Math $$x^2$$ and a ![pic](a.png)",
	}

	for _, raw := range inputs {
		once := Normalize(raw)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "normalizing twice should not change the result for %q", raw)
	}
}
