package search

import (
	"sort"

	"github.com/Aman-CERP/reporag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// Fuser combines dense and sparse result lists using Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ weight_list / (k + rank_list(d))
// summed over the lists the document appears in, 1-indexed ranks.
type Fuser struct {
	K int
}

// NewFuser creates a fuser with the default k.
func NewFuser(k int) *Fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fuser{K: k}
}

// Fuse merges the two ranked lists into candidates sorted by fused score.
// Sparse results carry no payload; lookup supplies metadata by chunk ID
// (candidates without metadata are dropped, they cannot be post-filtered
// or displayed). Scores are normalized so the best candidate is 1.0.
func (f *Fuser) Fuse(
	dense []*store.QueryMatch,
	sparse []*store.LexicalResult,
	lookup func(id string) *store.Metadata,
	weights Weights,
) []*Candidate {
	if len(dense) == 0 && len(sparse) == 0 {
		return []*Candidate{}
	}

	byID := make(map[string]*Candidate, len(dense)+len(sparse))

	for rank, m := range dense {
		c := &Candidate{
			ID:         m.ID,
			DenseScore: float64(m.Score),
			DenseRank:  rank + 1,
			Metadata:   m.Metadata,
		}
		c.Score = weights.Dense / float64(f.K+rank+1)
		byID[m.ID] = c
	}

	for rank, r := range sparse {
		c, ok := byID[r.DocID]
		if !ok {
			c = &Candidate{ID: r.DocID}
			byID[r.DocID] = c
		} else {
			c.InBothLists = true
		}
		c.SparseScore = r.Score
		c.SparseRank = rank + 1
		c.Score += weights.Sparse / float64(f.K+rank+1)
	}

	results := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		if c.Metadata == nil && lookup != nil {
			c.Metadata = lookup(c.ID)
		}
		if c.Metadata == nil {
			continue
		}
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return compareCandidates(results[i], results[j])
	})

	normalize(results)
	for _, c := range results {
		c.FusedScore = c.Score
	}
	return results
}

// compareCandidates implements deterministic ordering:
// fused score, then both-lists membership, then dense score, then ID.
func compareCandidates(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.DenseScore != b.DenseScore {
		return a.DenseScore > b.DenseScore
	}
	return a.ID < b.ID
}

// normalize scales fused scores so the maximum becomes 1.0.
func normalize(results []*Candidate) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max == 0 {
		return
	}
	for _, c := range results {
		c.Score /= max
	}
}
