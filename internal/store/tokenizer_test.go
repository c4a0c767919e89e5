package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsOnWhitespace(t *testing.T) {
	tokens := Tokenize("hello world")
	require.Len(t, tokens, 2)
	assert.Equal(t, "hello", tokens[0])
	assert.Equal(t, "world", tokens[1])
}

func TestTokenize_SplitsCamelCase(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"simple camelCase", "getUserById", []string{"get", "user", "by", "id"}},
		{"PascalCase", "UserAuthManager", []string{"user", "auth", "manager"}},
		{"with acronym", "parseHTTPRequest", []string{"parse", "http", "request"}},
		{"single word", "hello", []string{"hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_SplitsSnakeCase(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"simple snake_case", "get_user_by_id", []string{"get", "user", "by", "id"}},
		{"double underscore", "foo__bar", []string{"foo", "bar"}},
		{"mixed snake and camel", "get_UserById", []string{"get", "user", "by", "id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_FiltersShortTokens(t *testing.T) {
	tokens := Tokenize("a getUserById b")
	assert.Equal(t, []string{"get", "user", "by", "id"}, tokens)
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"empty string", "", []string{}},
		{"camelCase", "camelCase", []string{"camel", "Case"}},
		{"acronym at start", "HTTPHandler", []string{"HTTP", "Handler"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, splitCamelCase(tt.input))
		})
	}
}

func TestBuildStopWordMap(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "a"})
	_, hasThe := m["the"]
	_, hasA := m["a"]
	assert.True(t, hasThe)
	assert.True(t, hasA)
}

func BenchmarkTokenize(b *testing.B) {
	input := "the user authentication manager handles getUserById lookups"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Tokenize(input)
	}
}
