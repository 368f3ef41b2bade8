package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reporag/internal/store"
)

func meta(path string) *store.Metadata {
	return &store.Metadata{Path: path, Category: "code", Language: "python"}
}

func TestFuseEmptyLists(t *testing.T) {
	f := NewFuser(0)
	assert.Empty(t, f.Fuse(nil, nil, nil, DefaultWeights()))
}

func TestFuseCombinesBothLists(t *testing.T) {
	f := NewFuser(60)

	dense := []*store.QueryMatch{
		{ID: "a", Score: 0.9, Metadata: meta("a.py")},
		{ID: "b", Score: 0.8, Metadata: meta("b.py")},
	}
	sparse := []*store.LexicalResult{
		{DocID: "b", Score: 3.1},
		{DocID: "c", Score: 2.0},
	}
	lookup := func(id string) *store.Metadata {
		if id == "c" {
			return meta("c.py")
		}
		return nil
	}

	fused := f.Fuse(dense, sparse, lookup, Weights{Dense: 1.0, Sparse: 0.5})
	require.Len(t, fused, 3)

	// "b" appears in both lists: 1/(60+2) + 0.5/(60+1) beats "a" at 1/(60+1).
	assert.Equal(t, "b", fused[0].ID)
	assert.True(t, fused[0].InBothLists)
	assert.Equal(t, 2, fused[0].DenseRank)
	assert.Equal(t, 1, fused[0].SparseRank)

	assert.Equal(t, "a", fused[1].ID)
	assert.Equal(t, "c", fused[2].ID)

	// Normalized: best candidate scores 1.0, order is descending, and the
	// fused score is frozen alongside the working score.
	assert.Equal(t, 1.0, fused[0].Score)
	assert.GreaterOrEqual(t, fused[1].Score, fused[2].Score)
	for _, c := range fused {
		assert.Equal(t, c.Score, c.FusedScore)
	}
}

func TestFuseDropsCandidatesWithoutPayload(t *testing.T) {
	f := NewFuser(60)

	sparse := []*store.LexicalResult{{DocID: "ghost", Score: 1.0}}
	fused := f.Fuse(nil, sparse, func(string) *store.Metadata { return nil }, DefaultWeights())

	assert.Empty(t, fused)
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	f := NewFuser(60)

	// Two dense-only results with equal rank contributions cannot happen,
	// so build a tie from one dense-only and one sparse-only result.
	dense := []*store.QueryMatch{
		{ID: "x", Score: 0.5, Metadata: meta("x.py")},
	}
	sparse := []*store.LexicalResult{
		{DocID: "y", Score: 0.5},
	}
	lookup := func(id string) *store.Metadata { return meta(id + ".py") }

	// Dense weight equals sparse weight: both score w/(60+1); the tie breaks
	// on dense score, then ID.
	fused := f.Fuse(dense, sparse, lookup, Weights{Dense: 0.5, Sparse: 0.5})
	require.Len(t, fused, 2)
	assert.Equal(t, "x", fused[0].ID)
}

func TestRerankImplementationBoost(t *testing.T) {
	candidates := []*Candidate{
		{ID: "docs", Score: 1.0, FusedScore: 1.0, Metadata: &store.Metadata{Category: "docs", Path: "README.md"}},
		{ID: "code", Score: 0.9, FusedScore: 0.9, Metadata: &store.Metadata{Category: "code", HasFnDef: true, Path: "pkg/core.go"}},
	}

	Rerank(candidates, IntentImplementation, "frobnicate widgets")

	assert.Equal(t, "code", candidates[0].ID)
	assert.InDelta(t, 0.9*implementationBoost, candidates[0].Score, 1e-9)

	// Boosts adjust only the working score; the fused score is untouched.
	assert.Equal(t, 0.9, candidates[0].FusedScore)
	assert.Equal(t, 1.0, candidates[1].FusedScore)
}

func TestRerankArchitectureBoostsShallowFiles(t *testing.T) {
	candidates := []*Candidate{
		{ID: "deep", Score: 1.0, Metadata: &store.Metadata{Category: "code", Depth: 5, Path: "a/b/c/d/e.py"}},
		{ID: "root", Score: 0.95, Metadata: &store.Metadata{Category: "docs", Depth: 0, Path: "README.md"}},
	}

	Rerank(candidates, IntentArchitecture, "overall shape")

	assert.Equal(t, "root", candidates[0].ID)
}

func TestRerankPathAndPhraseBoosts(t *testing.T) {
	candidates := []*Candidate{
		{ID: "other", Score: 1.0, Metadata: &store.Metadata{Category: "config", Path: "settings.yaml", Text: "retries: 3"}},
		{ID: "match", Score: 1.0, Metadata: &store.Metadata{Category: "config", Path: "auth/session.py", Text: "the session timeout is configured here"}},
	}

	Rerank(candidates, IntentGeneral, "session timeout")

	assert.Equal(t, "match", candidates[0].ID)
	assert.InDelta(t, pathMatchBoost*exactPhraseBoost, candidates[0].Score, 1e-9)
}

func TestRerankStableForEqualScores(t *testing.T) {
	candidates := []*Candidate{
		{ID: "first", Score: 0.8, Metadata: &store.Metadata{Category: "other", Path: "one"}},
		{ID: "second", Score: 0.8, Metadata: &store.Metadata{Category: "other", Path: "two"}},
	}

	Rerank(candidates, IntentGeneral, "zzz")

	assert.Equal(t, "first", candidates[0].ID)
	assert.Equal(t, "second", candidates[1].ID)
}
