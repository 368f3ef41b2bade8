package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/answer"
	"github.com/Aman-CERP/reporag/internal/embed"
	"github.com/Aman-CERP/reporag/internal/ingest"
	"github.com/Aman-CERP/reporag/internal/job"
	"github.com/Aman-CERP/reporag/internal/llm"
	"github.com/Aman-CERP/reporag/internal/search"
	"github.com/Aman-CERP/reporag/internal/store"
)

const testRepoURL = "https://example.com/acme/app.git"

// blockingRunner holds jobs open until released.
type blockingRunner struct {
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, repoURL string, progress ingest.ProgressFunc) (*ingest.Summary, error) {
	progress("Cloning repository", 15)
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &ingest.Summary{FileCount: 1, ChunkCount: 1}, nil
}

// instantRunner completes immediately.
type instantRunner struct{}

func (instantRunner) Run(ctx context.Context, repoURL string, progress ingest.ProgressFunc) (*ingest.Summary, error) {
	progress("Complete", 100)
	return &ingest.Summary{FileCount: 1, ChunkCount: 1}, nil
}

func newTestServer(t *testing.T, runner job.Runner) (*Server, store.VectorStore) {
	t.Helper()

	vs := store.NewMemoryStore(embed.StaticDimensions)
	corpus := search.NewCorpus(vs, store.DefaultLexicalConfig())
	t.Cleanup(func() { _ = corpus.Close() })

	cfg := search.DefaultConfig()
	cfg.MinCandidates = 1
	engine := search.NewEngine(cfg, vs, embed.NewStatic(0), corpus)
	answerer := answer.New(answer.DefaultConfig(), &llm.Mock{})

	return New(job.New(runner), engine, answerer), vs
}

func postJSON(t *testing.T, s http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, s http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestIndexRepoAcceptedThenConflict(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s, _ := newTestServer(t, runner)
	defer close(runner.release)

	rec := postJSON(t, s, "/index_repo", `{"repo_url": "https://example.com/a.git"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "https://example.com/a.git", accepted["repo_url"])

	// Second start for a distinct URL while the first is running.
	rec = postJSON(t, s, "/index_repo", `{"repo_url": "https://example.com/b.git"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in progress")
}

func TestIndexRepoValidation(t *testing.T) {
	s, _ := newTestServer(t, instantRunner{})

	rec := postJSON(t, s, "/index_repo", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, s, "/index_repo", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressShape(t *testing.T) {
	s, _ := newTestServer(t, instantRunner{})

	rec := postJSON(t, s, "/index_repo", fmt.Sprintf(`{"repo_url": %q}`, testRepoURL))
	require.Equal(t, http.StatusAccepted, rec.Code)

	waitForResult(t, s)

	_, body := getJSON(t, s, "/progress")
	assert.Equal(t, false, body["in_progress"])
	assert.Equal(t, float64(100), body["progress"])
	assert.Equal(t, testRepoURL, body["repo_url"])

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, float64(1), result["fileCount"])
	assert.Equal(t, float64(1), result["chunkCount"])
}

func waitForResult(t *testing.T, s http.Handler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body := getJSON(t, s, "/progress")
		if body["in_progress"] == false && body["result"] != nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestChatWithoutIndexedRepo(t *testing.T) {
	s, _ := newTestServer(t, instantRunner{})

	rec := postJSON(t, s, "/chat", `{"query": "what is this"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatReturnsAnswerWithSources(t *testing.T) {
	s, vs := newTestServer(t, instantRunner{})
	ctx := context.Background()

	// Complete an ingestion so the server knows the active namespace.
	rec := postJSON(t, s, "/index_repo", fmt.Sprintf(`{"repo_url": %q}`, testRepoURL))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForResult(t, s)

	// Seed the namespace the server will query.
	namespace := ingest.NamespaceForURL(testRepoURL)
	e := embed.NewStatic(0)
	vec, err := e.Embed(ctx, "def login(user): verify(user)")
	require.NoError(t, err)
	require.NoError(t, vs.Upsert(ctx, namespace, []*store.Record{{
		ID:     "c1",
		Vector: vec,
		Metadata: &store.Metadata{
			Category: "code", Language: "python", Path: "auth/login.py",
			StartLine: 1, EndLine: 2, HasFnDef: true,
			Text: "def login(user): verify(user)",
		},
	}}))

	rec = postJSON(t, s, "/chat", `{"query": "where is the login code"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["answer"])
	assert.Equal(t, "implementation", body["intent"])

	sources, ok := body["sources"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, sources)
	first := sources[0].(map[string]any)
	assert.Equal(t, "auth/login.py", first["file"])
	assert.Equal(t, "1-2", first["lines"])

	conf, ok := body["confidence"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, conf["level"])
}

func TestChatEmptyNamespaceGivesNoInformation(t *testing.T) {
	s, _ := newTestServer(t, instantRunner{})

	rec := postJSON(t, s, "/index_repo", fmt.Sprintf(`{"repo_url": %q}`, testRepoURL))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForResult(t, s)

	rec = postJSON(t, s, "/chat", `{"query": "Find authentication logic"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, answer.NoInformationAnswer, body["answer"])
	assert.Empty(t, body["sources"])
	assert.Equal(t, "implementation", body["intent"])

	conf := body["confidence"].(map[string]any)
	assert.Equal(t, "none", conf["level"])
}

func TestChatLLMFailureIs502(t *testing.T) {
	vs := store.NewMemoryStore(embed.StaticDimensions)
	corpus := search.NewCorpus(vs, store.DefaultLexicalConfig())
	t.Cleanup(func() { _ = corpus.Close() })

	engine := search.NewEngine(search.DefaultConfig(), vs, embed.NewStatic(0), corpus)
	failing := &llm.Mock{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, fmt.Errorf("timeout")
	}}
	s := New(job.New(instantRunner{}), engine, answer.New(answer.DefaultConfig(), failing))

	rec := postJSON(t, s, "/index_repo", fmt.Sprintf(`{"repo_url": %q}`, testRepoURL))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForResult(t, s)

	// Seed one chunk so the answerer actually calls the LLM.
	ctx := context.Background()
	e := embed.NewStatic(0)
	vec, err := e.Embed(ctx, "def f(): pass")
	require.NoError(t, err)
	ns := ingest.NamespaceForURL(testRepoURL)
	require.NoError(t, vs.Upsert(ctx, ns, []*store.Record{{
		ID: "c1", Vector: vec,
		Metadata: &store.Metadata{Category: "code", Language: "python", Path: "f.py", StartLine: 1, EndLine: 1, Text: "def f(): pass"},
	}}))

	rec = postJSON(t, s, "/chat", `{"query": "what does f do"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, instantRunner{})

	rec, body := getJSON(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	services := body["services"].(map[string]any)
	assert.Equal(t, true, services["ingestion"])
	assert.Equal(t, true, services["rag"])
}
