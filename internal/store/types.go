// Package store provides the vector store contract and its two
// implementations: an embedded in-memory store (HNSW) and a remote HTTP
// client. Records live under per-repository namespaces; metadata carries
// the canonical chunk payload schema.
package store

import (
	"context"

	"github.com/Aman-CERP/reporag/internal/chunk"
)

// Metadata is the canonical chunk payload stored alongside each vector.
// Category, Language, Depth, and SizeCategory are indexed for server-side
// pre-filtering; the remaining attributes are post-filter and display fields.
type Metadata struct {
	Category     string `json:"category"`
	Language     string `json:"language"`
	Depth        int    `json:"depth"`
	SizeCategory string `json:"sizeCategory"`

	HasClassDef bool `json:"hasClassDef"`
	HasFnDef    bool `json:"hasFnDef"`
	HasImports  bool `json:"hasImports"`
	HasTests    bool `json:"hasTests"`
	Complexity  int  `json:"complexity"`
	WordCount   int  `json:"wordCount"`

	Text      string `json:"text"`
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// MetadataFromChunk builds the stored payload from a chunk.
func MetadataFromChunk(ch *chunk.Chunk) *Metadata {
	return &Metadata{
		Category:     ch.Category,
		Language:     ch.Language,
		Depth:        ch.Depth,
		SizeCategory: ch.SizeCategory,
		HasClassDef:  ch.HasClassDef,
		HasFnDef:     ch.HasFnDef,
		HasImports:   ch.HasImports,
		HasTests:     ch.HasTests,
		Complexity:   ch.Complexity,
		WordCount:    ch.WordCount,
		Text:         ch.Text,
		Path:         ch.Path,
		StartLine:    ch.StartLine,
		EndLine:      ch.EndLine,
	}
}

// Field returns the named metadata field for filter evaluation.
func (m *Metadata) Field(name string) (any, bool) {
	switch name {
	case "category":
		return m.Category, true
	case "language":
		return m.Language, true
	case "depth":
		return m.Depth, true
	case "sizeCategory":
		return m.SizeCategory, true
	case "hasClassDef":
		return m.HasClassDef, true
	case "hasFnDef":
		return m.HasFnDef, true
	case "hasImports":
		return m.HasImports, true
	case "hasTests":
		return m.HasTests, true
	case "complexity":
		return m.Complexity, true
	case "wordCount":
		return m.WordCount, true
	case "path":
		return m.Path, true
	case "startLine":
		return m.StartLine, true
	case "endLine":
		return m.EndLine, true
	}
	return nil, false
}

// indexedFields are the attributes usable in pre-filters.
var indexedFields = map[string]bool{
	"category":     true,
	"language":     true,
	"depth":        true,
	"sizeCategory": true,
}

// IsIndexed reports whether a field may appear in a pre-filter.
func IsIndexed(field string) bool { return indexedFields[field] }

// Record is one stored vector with its payload.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"values"`
	Metadata *Metadata `json:"metadata"`
}

// QueryMatch is one ranked result of a vector query.
type QueryMatch struct {
	ID       string    `json:"id"`
	Score    float32   `json:"score"`
	Metadata *Metadata `json:"metadata"`
}

// IndexStats reports per-namespace vector counts.
type IndexStats struct {
	// Namespaces maps namespace name to vector count.
	Namespaces map[string]int
}

// Count returns the vector count for a namespace.
func (s *IndexStats) Count(namespace string) int {
	if s == nil {
		return 0
	}
	return s.Namespaces[namespace]
}

// VectorStore is the external ANN service contract the core consumes.
// Upsert is idempotent on record ID; Query applies the metadata pre-filter
// server-side before ranking.
type VectorStore interface {
	// Upsert writes records under the namespace, replacing equal IDs.
	Upsert(ctx context.Context, namespace string, records []*Record) error

	// Query returns the topK nearest records, pre-filtered by filter.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]*QueryMatch, error)

	// Fetch returns records by ID. Missing IDs are omitted.
	Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error)

	// ListIDs enumerates all record IDs in the namespace.
	ListIDs(ctx context.Context, namespace string) ([]string, error)

	// DeleteNamespace removes every record in the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Stats reports vector counts per namespace.
	Stats(ctx context.Context) (*IndexStats, error)

	// Close releases resources.
	Close() error
}
