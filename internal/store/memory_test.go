package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/embed"
)

// seedRecords embeds short texts with the static embedder so vectors are
// deterministic and unit-norm.
func seedRecords(t *testing.T, texts map[string]*Metadata) []*Record {
	t.Helper()
	e := embed.NewStatic(64)

	var records []*Record
	for text, meta := range texts {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		m := *meta
		m.Text = text
		records = append(records, &Record{
			ID:       fmt.Sprintf("id-%s", m.Path),
			Vector:   vec,
			Metadata: &m,
		})
	}
	return records
}

func TestMemoryStoreUpsertAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)

	records := seedRecords(t, map[string]*Metadata{
		"def login(user): check(user)": {Category: "code", Language: "python", Path: "a.py"},
		"function render() {}":         {Category: "code", Language: "javascript", Path: "b.js"},
	})
	require.NoError(t, s.Upsert(ctx, "repo-x", records))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count("repo-x"))
	assert.Equal(t, 0, stats.Count("absent"))
}

func TestMemoryStoreUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)

	records := seedRecords(t, map[string]*Metadata{
		"def login(user): check(user)": {Category: "code", Language: "python", Path: "a.py"},
	})

	require.NoError(t, s.Upsert(ctx, "ns", records))
	require.NoError(t, s.Upsert(ctx, "ns", records))
	require.NoError(t, s.Upsert(ctx, "ns", records))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count("ns"))

	ids, err := s.ListIDs(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{records[0].ID}, ids)
}

func TestMemoryStoreQueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)
	e := embed.NewStatic(64)

	records := seedRecords(t, map[string]*Metadata{
		"authentication login password check": {Category: "code", Language: "python", Path: "auth.py"},
		"render template html page":           {Category: "code", Language: "python", Path: "view.py"},
		"database connection pool":            {Category: "code", Language: "python", Path: "db.py"},
	})
	require.NoError(t, s.Upsert(ctx, "ns", records))

	query, err := e.Embed(ctx, "login authentication")
	require.NoError(t, err)

	matches, err := s.Query(ctx, "ns", query, 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "auth.py", matches[0].Metadata.Path)
}

func TestMemoryStoreQueryPreFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)
	e := embed.NewStatic(64)

	records := seedRecords(t, map[string]*Metadata{
		"login handler python": {Category: "code", Language: "python", Path: "a.py"},
		"login handler js":     {Category: "code", Language: "javascript", Path: "a.js"},
		"login docs guide":     {Category: "docs", Language: "markdown", Path: "README.md"},
	})
	require.NoError(t, s.Upsert(ctx, "ns", records))

	query, err := e.Embed(ctx, "login handler")
	require.NoError(t, err)

	matches, err := s.Query(ctx, "ns", query, 10, Eq("language", "python"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a.py", matches[0].Metadata.Path)
}

func TestMemoryStoreDeleteNamespace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)

	records := seedRecords(t, map[string]*Metadata{
		"some content here": {Category: "code", Language: "go", Path: "x.go"},
	})
	require.NoError(t, s.Upsert(ctx, "ns", records))
	require.NoError(t, s.DeleteNamespace(ctx, "ns"))

	ids, err := s.ListIDs(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, ids)

	matches, err := s.Query(ctx, "ns", make([]float32, 64), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryStoreFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(64)

	records := seedRecords(t, map[string]*Metadata{
		"alpha beta": {Category: "code", Language: "go", Path: "a.go"},
		"gamma delta": {Category: "code", Language: "go", Path: "b.go"},
	})
	require.NoError(t, s.Upsert(ctx, "ns", records))

	got, err := s.Fetch(ctx, "ns", []string{records[0].ID, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].ID, got[0].ID)
}
