package search

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/Aman-CERP/reporag/internal/store"

	"golang.org/x/sync/singleflight"
)

// rebuildDriftFraction is the chunk-count drift that forces a corpus
// rebuild on the next query.
const rebuildDriftFraction = 0.05

// fetchPageSize bounds one Fetch call during a corpus rebuild.
const fetchPageSize = 100

// Corpus maintains the per-namespace lexical index and payload cache,
// built lazily on first query and refreshed when the namespace's chunk
// count drifts. Reads take a shared lock; rebuilds are deduplicated.
type Corpus struct {
	vs  store.VectorStore
	cfg store.LexicalConfig

	mu      sync.RWMutex
	entries map[string]*corpusEntry
	group   singleflight.Group
}

// corpusEntry is one namespace's cached corpus.
type corpusEntry struct {
	index *store.LexicalIndex
	meta  map[string]*store.Metadata
	count int
}

// NewCorpus creates a corpus manager over the vector store.
func NewCorpus(vs store.VectorStore, cfg store.LexicalConfig) *Corpus {
	return &Corpus{
		vs:      vs,
		cfg:     cfg,
		entries: make(map[string]*corpusEntry),
	}
}

// Search runs a lexical query over the namespace corpus.
func (c *Corpus) Search(ctx context.Context, namespace, query string, limit int) ([]*store.LexicalResult, error) {
	entry, err := c.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return entry.index.Search(ctx, query, limit)
}

// Metadata returns the cached payload for a chunk ID, nil when absent.
func (c *Corpus) Metadata(ctx context.Context, namespace, id string) *store.Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[namespace]; ok {
		return entry.meta[id]
	}
	return nil
}

// EstimateSelectivity implements SelectivityEstimator with a corpus probe:
// the fraction of cached payloads matching the filter.
func (c *Corpus) EstimateSelectivity(ctx context.Context, namespace string, filter store.Filter) (float64, error) {
	entry, err := c.entry(ctx, namespace)
	if err != nil {
		return 0, err
	}
	if len(entry.meta) == 0 {
		return 0, nil
	}

	matched := 0
	for _, m := range entry.meta {
		pass, err := store.Match(m, filter)
		if err != nil {
			return 0, err
		}
		if pass {
			matched++
		}
	}
	return float64(matched) / float64(len(entry.meta)), nil
}

// Invalidate drops the cached corpus for a namespace (called after ingest).
func (c *Corpus) Invalidate(namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[namespace]; ok {
		_ = entry.index.Close()
		delete(c.entries, namespace)
	}
}

// Close releases all cached indexes.
func (c *Corpus) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, entry := range c.entries {
		_ = entry.index.Close()
		delete(c.entries, name)
	}
	return nil
}

// entry returns the namespace corpus, rebuilding when missing or stale.
func (c *Corpus) entry(ctx context.Context, namespace string) (*corpusEntry, error) {
	stats, err := c.vs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	current := stats.Count(namespace)

	c.mu.RLock()
	entry, ok := c.entries[namespace]
	c.mu.RUnlock()

	if ok && !stale(entry.count, current) {
		return entry, nil
	}

	// Deduplicate concurrent rebuilds of the same namespace.
	v, err, _ := c.group.Do(namespace, func() (any, error) {
		return c.rebuild(ctx, namespace, current)
	})
	if err != nil {
		return nil, err
	}
	return v.(*corpusEntry), nil
}

// stale reports whether the cached count drifted beyond the threshold.
func stale(cached, current int) bool {
	if cached == current {
		return false
	}
	if cached == 0 || current == 0 {
		return true
	}
	drift := math.Abs(float64(current-cached)) / float64(cached)
	return drift > rebuildDriftFraction
}

// rebuild fetches the namespace corpus and builds a fresh lexical index.
func (c *Corpus) rebuild(ctx context.Context, namespace string, count int) (*corpusEntry, error) {
	ids, err := c.vs.ListIDs(ctx, namespace)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]*store.Metadata, len(ids))
	docs := make([]*store.Document, 0, len(ids))

	for start := 0; start < len(ids); start += fetchPageSize {
		end := start + fetchPageSize
		if end > len(ids) {
			end = len(ids)
		}
		records, err := c.vs.Fetch(ctx, namespace, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Metadata == nil {
				continue
			}
			meta[rec.ID] = rec.Metadata
			docs = append(docs, &store.Document{ID: rec.ID, Content: rec.Metadata.Text})
		}
	}

	index, err := store.NewLexicalIndex(c.cfg, docs)
	if err != nil {
		return nil, err
	}

	entry := &corpusEntry{index: index, meta: meta, count: count}

	c.mu.Lock()
	if old, ok := c.entries[namespace]; ok {
		_ = old.index.Close()
	}
	c.entries[namespace] = entry
	c.mu.Unlock()

	slog.Debug("lexical corpus rebuilt",
		slog.String("namespace", namespace),
		slog.Int("documents", len(docs)))

	return entry, nil
}
