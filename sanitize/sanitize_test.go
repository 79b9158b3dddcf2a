package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", "hello"},
		{"formatting kept", `<p>Hi <strong>there</strong> <a href="https://example.com">me</a></p>`, `<p>Hi <strong>there</strong> <a href="https://example.com">me</a></p>`},
		{"script removed", `<p>a</p><script>alert(1)</script><p>b</p>`, `<p>a</p><p>b</p>`},
		{"nested script removed", `<div><p>x<script>alert(1)</script></p></div>`, `<div><p>x</p></div>`},
		{"iframe removed", `<iframe src="https://evil.example"></iframe><b>ok</b>`, `<b>ok</b>`},
		{"stylesheet removed", `<link rel="stylesheet" href="/x.css"><i>ok</i>`, `<i>ok</i>`},
		{"event handlers removed", `<img src="data:image/png;base64,AAAA" onerror="alert(1)">`, `<img src="data:image/png;base64,AAAA"/>`},
		{"javascript href removed", `<a href=" javascript:alert(1)">x</a>`, `<a>x</a>`},
		{"comment removed", `<!-- hidden --><p>x</p>`, `<p>x</p>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Sanitize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_SVGAnimationRemoved(t *testing.T) {
	s := New()

	for _, in := range []string{
		`<svg><a><animate attributeName="href" values="javascript:alert(1)"/><text>x</text></a></svg>`,
		`<svg><a><set attributeName="href" to="javascript:alert(1)"/></a></svg>`,
		`<svg><animateMotion dur="1s"/><animateTransform attributeName="transform"/></svg>`,
	} {
		got, err := s.Sanitize(in)
		require.NoError(t, err)
		assert.Contains(t, got, "<svg>", in)
		assert.NotContains(t, strings.ToLower(got), "animate", in)
		assert.NotContains(t, got, "<set", in)
		assert.NotContains(t, got, "javascript:", in)
	}
}
