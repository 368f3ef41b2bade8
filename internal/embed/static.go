package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// StaticDimensions is the dimension of the hash-based embedder.
const StaticDimensions = 256

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticEmbedder generates embeddings using token hashing.
// Deterministic and dependency-free: the same text always maps to the same
// vector, unit-norm when the text has at least one alphanumeric token and
// all zeros otherwise, which makes it the fixture embedder for tests and a
// fallback for offline runs. Semantic quality is reduced accordingly.
type StaticEmbedder struct {
	dims int
}

// NewStatic creates a static embedder. dims <= 0 uses StaticDimensions.
func NewStatic(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dims)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector, nil
	}

	for _, token := range tokenRegex.FindAllString(strings.ToLower(trimmed), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vector[h.Sum32()%uint32(e.dims)] += 1.0
	}

	return normalizeVector(vector), nil
}

// EmbedBatch generates embeddings for multiple texts in input order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-hash" }

// Close releases resources.
func (e *StaticEmbedder) Close() error { return nil }

// Verify interface implementation.
var _ Embedder = (*StaticEmbedder)(nil)
