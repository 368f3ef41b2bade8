// Package chunk splits files into overlapping, line-annotated chunks sized
// for the embedder's token budget, and enriches them with retrieval metadata.
//
// Split points prefer top-level declaration boundaries, then blank-line
// paragraph boundaries, then any newline near the target size. A chunk never
// splits mid-line.
package chunk

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker defaults.
const (
	DefaultTargetTokens = 512
	DefaultMaxTokens    = 1024
	DefaultOverlapChars = 200
	DefaultMinBytes     = 100

	// tokenEncoding is the tiktoken encoding used for budget accounting.
	tokenEncoding = "cl100k_base"
)

// Config configures the chunker.
type Config struct {
	// TargetTokens is the preferred chunk size T.
	TargetTokens int
	// MaxTokens is the hard cap T_max.
	MaxTokens int
	// OverlapChars is the overlap window O between consecutive chunks.
	OverlapChars int
	// MinBytes is T_min; smaller files become a single chunk.
	MinBytes int
}

// DefaultConfig returns the consolidated chunker defaults.
func DefaultConfig() Config {
	return Config{
		TargetTokens: DefaultTargetTokens,
		MaxTokens:    DefaultMaxTokens,
		OverlapChars: DefaultOverlapChars,
		MinBytes:     DefaultMinBytes,
	}
}

// Chunker splits file contents into chunks.
// The token encoder loads lazily; the first call pays the cost.
type Chunker struct {
	cfg Config

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
}

// New creates a Chunker. Non-positive TargetTokens and MinBytes and a
// negative OverlapChars fall back to defaults; OverlapChars of zero means
// no overlap, and a MaxTokens below TargetTokens becomes 2*TargetTokens.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = def.TargetTokens
	}
	if cfg.MaxTokens < cfg.TargetTokens {
		cfg.MaxTokens = 2 * cfg.TargetTokens
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = def.OverlapChars
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = def.MinBytes
	}
	return &Chunker{cfg: cfg}
}

// countTokens returns the token count for text, falling back to a
// bytes/4 estimate if the encoding cannot be loaded.
func (c *Chunker) countTokens(text string) int {
	c.encOnce.Do(func() {
		c.enc, c.encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if c.encErr != nil || c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// File is the chunker's input: one file of a repository snapshot.
type File struct {
	Path     string
	Language string
	Category string
	Depth    int
	Content  []byte
}

// Split chunks the file and enriches every chunk with metadata.
// Empty or whitespace-only files yield no chunks. Chunk order follows
// file order; IDs are derived from repoID and content (stable).
func (c *Chunker) Split(repoID string, file *File) []*Chunk {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	// A trailing newline yields a phantom empty last line; drop it so
	// EndLine matches the real line count.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var spans []span
	if len(file.Content) < c.cfg.MinBytes {
		spans = []span{{start: 0, end: len(lines)}}
	} else {
		spans = c.split(lines, file.Language)
	}

	chunks := make([]*Chunk, 0, len(spans))
	for _, sp := range spans {
		text := strings.Join(lines[sp.start:sp.end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		ch := &Chunk{
			RepoID:    repoID,
			Text:      text,
			Path:      file.Path,
			StartLine: sp.start + 1,
			EndLine:   sp.end,
			Category:  file.Category,
			Language:  file.Language,
			Depth:     file.Depth,
		}
		ch.ID = ComputeID(repoID, file.Path, ch.StartLine, ch.EndLine, text)
		enrich(ch)
		chunks = append(chunks, ch)
	}
	return chunks
}

// span is a half-open line range [start, end).
type span struct {
	start, end int
}

// split walks the file greedily, closing a chunk once the token budget is
// reached and backing up to the best boundary within the trailing window.
func (c *Chunker) split(lines []string, language string) []span {
	decl := patternsFor(language).decl

	// Per-line token counts, computed once.
	lineTokens := make([]int, len(lines))
	for i, ln := range lines {
		lineTokens[i] = c.countTokens(ln) + 1 // +1 for the newline
	}

	var spans []span
	start := 0
	prevEnd := 0
	for start < len(lines) {
		end := start
		tokens := 0
		cut := -1

		for end < len(lines) {
			tokens += lineTokens[end]
			end++

			if tokens >= c.cfg.MaxTokens {
				break
			}
			if tokens >= c.cfg.TargetTokens {
				cut = c.findBoundary(lines, start, end, decl)
				break
			}
		}

		if cut > start && cut < end {
			end = cut
		}
		// Guarantee forward progress over the previous span.
		if end <= prevEnd {
			end = prevEnd + 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		spans = append(spans, span{start: start, end: end})
		prevEnd = end

		if end >= len(lines) {
			break
		}
		next := c.overlapStart(lines, end)
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}

// findBoundary looks backward from end for the best split point: a
// declaration header first, then a blank line. Only the trailing third of
// the chunk is searched so chunks stay near the target size. Returns the
// line index to split before, or -1 when no boundary is found.
func (c *Chunker) findBoundary(lines []string, start, end int, decl *regexp.Regexp) int {
	floor := start + (end-start)*2/3
	if floor <= start {
		floor = start + 1
	}
	for i := end - 1; i > floor; i-- {
		if decl != nil && decl.MatchString(lines[i]) {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			return i
		}
	}
	return -1
}

// overlapStart walks back from the split point until roughly OverlapChars
// characters are repeated, guaranteeing forward progress.
func (c *Chunker) overlapStart(lines []string, end int) int {
	if c.cfg.OverlapChars <= 0 {
		return end
	}
	chars := 0
	start := end
	for start > 0 && chars < c.cfg.OverlapChars {
		start--
		chars += len(lines[start]) + 1
	}
	return start
}
