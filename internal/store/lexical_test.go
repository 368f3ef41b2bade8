package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeCode(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"getUserById", []string{"get", "user", "by", "id"}},
		{"parse_http_request", []string{"parse", "http", "request"}},
		{"HTTPHandler", []string{"http", "handler"}},
		{"x = 1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeCode(tt.input))
		})
	}
}

func TestLexicalIndexSearch(t *testing.T) {
	docs := []*Document{
		{ID: "auth", Content: "def authenticate_user(password):\n    return verify_password(password)"},
		{ID: "render", Content: "def render_template(page):\n    return html_output(page)"},
		{ID: "db", Content: "def open_connection(pool):\n    return database_pool_acquire(pool)"},
	}

	idx, err := NewLexicalIndex(DefaultLexicalConfig(), docs)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	assert.Equal(t, 3, idx.DocCount())

	results, err := idx.Search(context.Background(), "authenticate password", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "auth", results[0].DocID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestLexicalIndexCamelCaseQuery(t *testing.T) {
	docs := []*Document{
		{ID: "a", Content: "func getUserById(id string) {}"},
		{ID: "b", Content: "func renderPage(w io.Writer) {}"},
	}

	idx, err := NewLexicalIndex(DefaultLexicalConfig(), docs)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "user id", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].DocID)
}

func TestLexicalConfigEnforcesBM25Parameters(t *testing.T) {
	cfg := DefaultLexicalConfig()
	assert.Equal(t, BM25K1, cfg.K1)
	assert.Equal(t, BM25B, cfg.B)

	// Zero values take the contract defaults.
	idx, err := NewLexicalIndex(LexicalConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	// The scorer cannot honor other parameters; they are rejected, not
	// silently ignored.
	_, err = NewLexicalIndex(LexicalConfig{K1: 2.0, B: BM25B}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BM25")

	_, err = NewLexicalIndex(LexicalConfig{K1: BM25K1, B: 0.5}, nil)
	require.Error(t, err)
}

func TestLexicalIndexEmptyQuery(t *testing.T) {
	idx, err := NewLexicalIndex(DefaultLexicalConfig(), nil)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
