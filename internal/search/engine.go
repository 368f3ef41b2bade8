package search

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/reporag/internal/embed"
	"github.com/Aman-CERP/reporag/internal/errors"
	"github.com/Aman-CERP/reporag/internal/store"
)

// Engine defaults.
const (
	DefaultTopKDense     = 40
	DefaultTopKSparse    = 40
	DefaultMinCandidates = 5
)

// Config configures the hybrid retrieval engine.
type Config struct {
	TopKDense  int
	TopKSparse int

	// MinCandidates is the floor M: when staged filtering leaves fewer
	// candidates, the full fused set is restored.
	MinCandidates int

	RRFConstant  int
	DenseWeight  float64
	SparseWeight float64

	SelectivityMin float64
	SelectivityMax float64
}

// DefaultConfig returns the consolidated retrieval defaults.
func DefaultConfig() Config {
	return Config{
		TopKDense:      DefaultTopKDense,
		TopKSparse:     DefaultTopKSparse,
		MinCandidates:  DefaultMinCandidates,
		RRFConstant:    DefaultRRFConstant,
		DenseWeight:    1.0,
		SparseWeight:   0.5,
		SelectivityMin: DefaultSelectivityMin,
		SelectivityMax: DefaultSelectivityMax,
	}
}

// Engine executes the hybrid retrieval pipeline: plan, dense + sparse
// search, RRF fusion, staged post-filtering with recall fallback, and
// intent-weighted reranking.
type Engine struct {
	cfg      Config
	vs       store.VectorStore
	embedder embed.Embedder
	planner  *Planner
	corpus   *Corpus
	fuser    *Fuser
}

// NewEngine creates a hybrid retrieval engine.
func NewEngine(cfg Config, vs store.VectorStore, embedder embed.Embedder, corpus *Corpus) *Engine {
	def := DefaultConfig()
	if cfg.TopKDense <= 0 {
		cfg.TopKDense = def.TopKDense
	}
	if cfg.TopKSparse <= 0 {
		cfg.TopKSparse = def.TopKSparse
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = def.MinCandidates
	}
	if cfg.DenseWeight == 0 && cfg.SparseWeight == 0 {
		cfg.DenseWeight = def.DenseWeight
		cfg.SparseWeight = def.SparseWeight
	}
	return &Engine{
		cfg:      cfg,
		vs:       vs,
		embedder: embedder,
		planner:  NewPlanner(cfg.SelectivityMin, cfg.SelectivityMax),
		corpus:   corpus,
		fuser:    NewFuser(cfg.RRFConstant),
	}
}

// Corpus exposes the corpus manager (the indexer invalidates it after ingest).
func (e *Engine) Corpus() *Corpus { return e.corpus }

// Retrieve runs the full query pipeline for one namespace.
func (e *Engine) Retrieve(ctx context.Context, namespace, query string) (*Result, error) {
	plan := e.planner.Plan(ctx, namespace, query, e.corpus)
	plan.Weights = Weights{Dense: e.cfg.DenseWeight, Sparse: e.cfg.SparseWeight}

	// Dense retrieval: embed the (rewritten) query once.
	queryVec, err := e.embedder.Embed(ctx, plan.RewrittenQuery)
	if err != nil {
		return nil, err
	}

	dense, err := e.vs.Query(ctx, namespace, queryVec, e.cfg.TopKDense, plan.PreFilters)
	if err != nil {
		if errors.IsKind(err, errors.KindFilter) {
			// Malformed plan: disable filters and retry unfiltered.
			slog.Warn("dense query rejected filter, retrying unfiltered", slog.String("error", err.Error()))
			plan.PreFilters = nil
			plan.PostFilters = nil
			dense, err = e.vs.Query(ctx, namespace, queryVec, e.cfg.TopKDense, nil)
		}
		if err != nil {
			return nil, err
		}
	}

	// Sparse retrieval over the namespace corpus.
	sparse, err := e.corpus.Search(ctx, namespace, query, e.cfg.TopKSparse)
	if err != nil {
		// Lexical failures degrade to dense-only retrieval.
		slog.Warn("sparse search failed, using dense only",
			slog.String("namespace", namespace),
			slog.String("error", err.Error()))
		sparse = nil
	}

	fused := e.fuser.Fuse(dense, sparse, func(id string) *store.Metadata {
		return e.corpus.Metadata(ctx, namespace, id)
	}, plan.Weights)

	candidates, fallback := e.applyPostFilters(fused, plan)

	Rerank(candidates, plan.Intent, query)

	return &Result{
		Plan:           plan,
		Candidates:     candidates,
		FilterFallback: fallback,
	}, nil
}

// applyPostFilters drops candidates violating the post-filters. When the
// survivor set is smaller than MinCandidates the full fused set is used
// instead, so filtering never empties a non-empty fused set.
func (e *Engine) applyPostFilters(fused []*Candidate, plan *Plan) ([]*Candidate, bool) {
	if len(plan.PostFilters) == 0 {
		return fused, false
	}

	kept := make([]*Candidate, 0, len(fused))
	for _, c := range fused {
		pass, err := store.Match(c.Metadata, plan.PostFilters)
		if err != nil {
			// Malformed post-filter: disable and fall back.
			slog.Warn("post-filter evaluation failed, disabling", slog.String("error", err.Error()))
			plan.PostFilters = nil
			return fused, true
		}
		if pass {
			kept = append(kept, c)
		}
	}

	if len(kept) < e.cfg.MinCandidates {
		return fused, true
	}
	return kept, false
}
