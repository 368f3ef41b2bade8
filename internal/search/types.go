// Package search implements the query pipeline: intent planning, hybrid
// dense+sparse retrieval, Reciprocal Rank Fusion, staged filtering, and
// intent-weighted reranking.
package search

import (
	"github.com/Aman-CERP/reporag/internal/store"
)

// Intent is the coarse semantic class of a query. It biases filter
// defaults, reranking weights, and answer instructions.
type Intent string

const (
	IntentImplementation Intent = "implementation"
	IntentDebugging      Intent = "debugging"
	IntentArchitecture   Intent = "architecture"
	IntentDocumentation  Intent = "documentation"
	IntentGeneral        Intent = "general"
)

// Weights configures the relative importance of the dense and sparse lists
// during fusion.
type Weights struct {
	Dense  float64
	Sparse float64
}

// DefaultWeights returns the fusion defaults.
func DefaultWeights() Weights {
	return Weights{Dense: 1.0, Sparse: 0.5}
}

// Plan is the retrieval plan produced by the Planner.
type Plan struct {
	// Intent is the classified query intent.
	Intent Intent

	// Query is the original query text.
	Query string

	// RewrittenQuery carries abbreviation expansions and intent hints;
	// it is what gets embedded for dense retrieval.
	RewrittenQuery string

	// PreFilters act server-side on indexed metadata. Nil when the
	// selectivity gate dropped them.
	PreFilters store.Filter

	// PostFilters act client-side on retrieved candidates.
	PostFilters store.Filter

	// Weights are the fusion weights for this query.
	Weights Weights

	// GateSelectivity is the estimate that drove the gate decision
	// (negative when no estimate was made).
	GateSelectivity float64
}

// Candidate is one fused retrieval result.
type Candidate struct {
	ID string

	// Score is the working score: the normalized fused score, subsequently
	// multiplied by reranker boosts.
	Score float64

	// FusedScore is the normalized RRF score frozen before any rerank
	// boost. Confidence and citation ordering read it.
	FusedScore float64

	DenseScore  float64
	DenseRank   int // 1-indexed, 0 if absent
	SparseScore float64
	SparseRank  int // 1-indexed, 0 if absent

	// InBothLists marks candidates found by both retrievers.
	InBothLists bool

	Metadata *store.Metadata
}

// Result is the outcome of hybrid retrieval for one query.
type Result struct {
	Plan *Plan

	// Candidates are reranked, best first.
	Candidates []*Candidate

	// FilterFallback is set when the staged filters starved the candidate
	// set below the minimum and the full fused set was restored.
	FilterFallback bool
}
