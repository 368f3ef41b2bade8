package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/chunk"
	"github.com/Aman-CERP/reporag/internal/embed"
	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/scanner"
	"github.com/Aman-CERP/reporag/internal/store"
)

func TestNamespaceForURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/Acme/RepoRAG.git", "github-com-acme-reporag"},
		{"https://github.com/acme/reporag", "github-com-acme-reporag"},
		{"HTTPS://GitHub.com/Acme/RepoRAG", "github-com-acme-reporag"},
		{"git@github.com:acme/reporag.git", "github-com-acme-reporag"},
		{"https://gitlab.com/group/sub/project/", "gitlab-com-group-sub-project"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, NamespaceForURL(tt.url))
		})
	}
}

func testPipeline(vs store.VectorStore, e embed.Embedder) *Pipeline {
	cfg := DefaultConfig()
	cfg.GCBetweenBatches = false
	return New(cfg, nil, scanner.New(0), chunk.New(chunk.DefaultConfig()), e, vs, nil)
}

func testFiles() []*scanner.FileRecord {
	py := "def login(user, password):\n    return verify(user, password)\n"
	js := "function render(page) {\n  return template(page)\n}\n"
	return []*scanner.FileRecord{
		{Path: "auth/login.py", Language: "python", Category: scanner.CategoryCode, Depth: 1, Bytes: []byte(py)},
		{Path: "web/render.js", Language: "javascript", Category: scanner.CategoryCode, Depth: 1, Bytes: []byte(js)},
	}
}

func TestIndexChunksAcknowledgedCounts(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	p := testPipeline(vs, embed.NewStatic(0))
	ctx := context.Background()

	chunks := p.chunkAll("ns", testFiles(), func(string, int) {})
	require.NotEmpty(t, chunks)

	indexed, skipped, err := p.indexChunks(ctx, "ns", chunks, func(string, int) {})
	require.NoError(t, err)
	assert.Equal(t, len(chunks), indexed)
	assert.Zero(t, skipped)

	stats, err := vs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, indexed, stats.Count("ns"))
}

func TestReingestIsIdempotent(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	p := testPipeline(vs, embed.NewStatic(0))
	ctx := context.Background()

	chunks := p.chunkAll("ns", testFiles(), func(string, int) {})

	_, _, err := p.indexChunks(ctx, "ns", chunks, func(string, int) {})
	require.NoError(t, err)
	first, err := vs.ListIDs(ctx, "ns")
	require.NoError(t, err)

	// Second pass over identical content: same ids, same count.
	chunks2 := p.chunkAll("ns", testFiles(), func(string, int) {})
	_, _, err = p.indexChunks(ctx, "ns", chunks2, func(string, int) {})
	require.NoError(t, err)
	second, err := vs.ListIDs(ctx, "ns")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkIDsSurviveNamespaceReset(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	p := testPipeline(vs, embed.NewStatic(0))
	ctx := context.Background()

	chunks := p.chunkAll("ns", testFiles(), func(string, int) {})
	_, _, err := p.indexChunks(ctx, "ns", chunks, func(string, int) {})
	require.NoError(t, err)
	first, err := vs.ListIDs(ctx, "ns")
	require.NoError(t, err)

	require.NoError(t, vs.DeleteNamespace(ctx, "ns"))

	chunks2 := p.chunkAll("ns", testFiles(), func(string, int) {})
	_, _, err = p.indexChunks(ctx, "ns", chunks2, func(string, int) {})
	require.NoError(t, err)
	second, err := vs.ListIDs(ctx, "ns")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// failingEmbedder fails every text whose content matches a marker.
type failingEmbedder struct {
	inner  embed.Embedder
	marker string
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.marker != "" && len(text) > 0 && containsMarker(text, f.marker) {
		return nil, errors.Permanent(errors.KindEmbed, "payload invalid", nil)
	}
	return f.inner.Embed(ctx, text)
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if containsMarker(t, f.marker) {
			return nil, errors.Permanent(errors.KindEmbed, "payload invalid", nil)
		}
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *failingEmbedder) Dimensions() int   { return f.inner.Dimensions() }
func (f *failingEmbedder) ModelName() string { return f.inner.ModelName() }
func (f *failingEmbedder) Close() error      { return f.inner.Close() }

func containsMarker(text, marker string) bool {
	return marker != "" && len(text) >= len(marker) && indexOf(text, marker) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestIndexChunksSkipsFailingChunk(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	e := &failingEmbedder{inner: embed.NewStatic(0), marker: "POISON"}
	p := testPipeline(vs, e)
	ctx := context.Background()

	files := testFiles()
	files = append(files, &scanner.FileRecord{
		Path: "bad.py", Language: "python", Category: scanner.CategoryCode, Depth: 0,
		Bytes: []byte("POISON = True\n"),
	})

	chunks := p.chunkAll("ns", files, func(string, int) {})
	indexed, skipped, err := p.indexChunks(ctx, "ns", chunks, func(string, int) {})
	require.NoError(t, err)

	assert.Equal(t, 1, skipped)
	assert.Equal(t, len(chunks)-1, indexed)
}

func TestIndexChunksAbortsAfterConsecutiveFailures(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	e := &failingEmbedder{inner: embed.NewStatic(0), marker: "POISON"}

	cfg := DefaultConfig()
	cfg.GCBetweenBatches = false
	cfg.MaxConsecutiveSkips = 3
	p := New(cfg, nil, scanner.New(0), chunk.New(chunk.DefaultConfig()), e, vs, nil)

	var files []*scanner.FileRecord
	for i := 0; i < 6; i++ {
		files = append(files, &scanner.FileRecord{
			Path: fmt.Sprintf("bad%d.py", i), Language: "python", Category: scanner.CategoryCode,
			Bytes: []byte(fmt.Sprintf("POISON_%d = True\n", i)),
		})
	}

	chunks := p.chunkAll("ns", files, func(string, int) {})
	require.Len(t, chunks, 6)

	_, _, err := p.indexChunks(context.Background(), "ns", chunks, func(string, int) {})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindIndex))
}

func TestProgressReachesStages(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	p := testPipeline(vs, embed.NewStatic(0))

	var stages []string
	var last int
	record := func(stage string, pct int) {
		stages = append(stages, stage)
		last = pct
	}

	chunks := p.chunkAll("ns", testFiles(), record)
	_, _, err := p.indexChunks(context.Background(), "ns", chunks, record)
	require.NoError(t, err)

	assert.Contains(t, stages, "Processing files")
	assert.Contains(t, stages, "Creating embeddings")
	assert.LessOrEqual(t, last, 100)
}
