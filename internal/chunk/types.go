package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size category bounds, in words.
const (
	smallMaxWords  = 200
	mediumMaxWords = 800
)

// Chunk is a bounded, line-annotated slice of a single file with derived
// metadata. IDs are content-addressed and stable across re-ingests.
type Chunk struct {
	ID     string `json:"id"`
	RepoID string `json:"repoId"`
	Text   string `json:"text"`
	Path   string `json:"path"`

	// StartLine and EndLine are 1-indexed, inclusive.
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`

	Category string `json:"category"`
	Language string `json:"language"`
	Depth    int    `json:"depth"`

	// SizeCategory buckets WordCount: small, medium, large.
	SizeCategory string `json:"sizeCategory"`

	HasClassDef bool `json:"hasClassDef"`
	HasFnDef    bool `json:"hasFnDef"`
	HasImports  bool `json:"hasImports"`
	HasTests    bool `json:"hasTests"`

	// Complexity is a monotone heuristic proxy in [1..10].
	Complexity int `json:"complexity"`
	WordCount  int `json:"wordCount"`
}

// ComputeID derives the stable chunk identifier:
// hash(repoID ‖ path ‖ startLine ‖ endLine ‖ contentHash).
func ComputeID(repoID, path string, startLine, endLine int, text string) string {
	contentHash := sha256.Sum256([]byte(text))
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%s", repoID, path, startLine, endLine, hex.EncodeToString(contentHash[:]))
	return hex.EncodeToString(h.Sum(nil))
}

// sizeCategoryFor buckets a word count.
func sizeCategoryFor(words int) string {
	switch {
	case words < smallMaxWords:
		return "small"
	case words <= mediumMaxWords:
		return "medium"
	default:
		return "large"
	}
}
