package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern_Match(t *testing.T) {
	tests := []struct {
		pattern string
		match   []string
		reject  []string
	}{
		{
			pattern: "filter:*",
			match:   []string{"filter:active", "filter:", "filter:cat:bikes"},
			reject:  []string{"filters:x", "user:filter:a", "filter"},
		},
		{
			pattern: "*:42",
			match:   []string{"user:42", ":42", "listing:user:42"},
			reject:  []string{"user:420", "user:4"},
		},
		{
			pattern: "user:*:profile",
			match:   []string{"user:42:profile", "user::profile"},
			reject:  []string{"user:profile", "user:42:profile:v2"},
		},
		{
			pattern: "*",
			match:   []string{"", "anything"},
		},
		{
			pattern: "config:categories",
			match:   []string{"config:categories"},
			reject:  []string{"config:categories:v2", "config:"},
		},
		{
			pattern: `promo\*star*`,
			match:   []string{"promo*star", "promo*star:1"},
			reject:  []string{"promoXstar"},
		},
		{
			pattern: `path\\*`,
			match:   []string{`path\`, `path\x`},
			reject:  []string{"path"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := compilePattern(tt.pattern)
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, p.match(s), "%q should match %q", tt.pattern, s)
			}
			for _, s := range tt.reject {
				assert.False(t, p.match(s), "%q should not match %q", tt.pattern, s)
			}
		})
	}
}

func TestCompilePattern_Errors(t *testing.T) {
	for _, pattern := range []string{"a*b*", "**", `abc\`, `a\x`} {
		_, err := compilePattern(pattern)
		assert.True(t, IsCode(err, ErrInvalidPattern), pattern)
	}
}

func TestEscapeGlob(t *testing.T) {
	p, err := compilePattern(escapeGlob(`we*ird\tag`))
	require.NoError(t, err)
	assert.True(t, p.match(`we*ird\tag`))
	assert.False(t, p.match(`weXXird\tag`))
}

func TestTagIndex_ReplaceAndRemove(t *testing.T) {
	idx := newTagIndex()
	idx.indexTags("user:42", []string{"user:42", "filter:active"})
	idx.indexTags("user:43", []string{"user:43", "filter:active"})

	assert.ElementsMatch(t, []string{"user:42", "user:43"}, idx.keysForTag("filter:active"))

	// 替换标签后旧标签不再指向该键
	idx.indexTags("user:42", []string{"user:42"})
	assert.ElementsMatch(t, []string{"user:43"}, idx.keysForTag("filter:active"))
	assert.ElementsMatch(t, []string{"user:42"}, idx.keysForTag("user:42"))

	idx.removeKey("user:43")
	assert.Empty(t, idx.keysForTag("filter:active"))
	_, exists := idx.byTag["filter:active"]
	assert.False(t, exists, "空标签集合应被清理")

	idx.removeKey("missing")
	assert.Len(t, idx.byKey, 1)
}

func TestTagIndex_KeysForTagPattern(t *testing.T) {
	idx := newTagIndex()
	idx.indexTags("a", []string{"filter:active", "filter:new"})
	idx.indexTags("b", []string{"filter:active"})
	idx.indexTags("c", []string{"category"})

	p, err := compilePattern("filter:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, idx.keysForTagPattern(p))
}

func TestKeysMatchingPattern(t *testing.T) {
	p, err := compilePattern("listing:*")
	require.NoError(t, err)
	keys := []string{"listing:1", "listing:2", "user:1", "listings"}
	assert.ElementsMatch(t, []string{"listing:1", "listing:2"}, keysMatchingPattern(keys, p))
}
