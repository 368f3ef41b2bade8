package store

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// MemoryStore is the embedded VectorStore used for tests and local runs.
// Each namespace owns an HNSW graph plus a record map; queries over-fetch
// from the graph and fall back to a linear scan when a pre-filter starves
// the candidate set.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
	dimensions int
}

// memoryNamespace is the per-namespace state.
type memoryNamespace struct {
	graph   *hnsw.Graph[uint64]
	records map[string]*Record
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string]*memoryNamespace),
		dimensions: dimensions,
	}
}

// namespace returns or creates the per-namespace state. Caller holds mu.
func (s *MemoryStore) namespace(name string) *memoryNamespace {
	ns, ok := s.namespaces[name]
	if !ok {
		graph := hnsw.NewGraph[uint64]()
		graph.Distance = hnsw.CosineDistance
		graph.M = 16
		graph.EfSearch = 64
		ns = &memoryNamespace{
			graph:   graph,
			records: make(map[string]*Record),
			idMap:   make(map[string]uint64),
			keyMap:  make(map[uint64]string),
		}
		s.namespaces[name] = ns
	}
	return ns
}

// Upsert writes records, replacing equal IDs. Replacement uses lazy
// deletion: the old graph node is orphaned rather than removed.
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespace(namespace)
	for _, rec := range records {
		if existing, ok := ns.idMap[rec.ID]; ok {
			delete(ns.keyMap, existing)
			delete(ns.idMap, rec.ID)
		}

		key := ns.nextKey
		ns.nextKey++

		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		ns.graph.Add(hnsw.MakeNode(key, vec))

		ns.idMap[rec.ID] = key
		ns.keyMap[key] = rec.ID
		ns.records[rec.ID] = rec
	}
	return nil
}

// Query returns the topK nearest records passing the pre-filter.
func (s *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]*QueryMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok || len(ns.records) == 0 {
		return []*QueryMatch{}, nil
	}

	// Over-fetch to survive filtering plus orphaned graph nodes.
	fetchK := topK * 4
	if fetchK > ns.graph.Len() {
		fetchK = ns.graph.Len()
	}

	matches := s.collect(ns, ns.graph.Search(vector, fetchK), vector, topK, filter)
	if len(matches) >= topK || len(filter) == 0 {
		return matches, nil
	}

	// Filter starved the ANN candidates: linear scan the namespace.
	return s.scan(ns, vector, topK, filter)
}

// collect converts graph nodes to matches, applying the filter.
func (s *MemoryStore) collect(ns *memoryNamespace, nodes []hnsw.Node[uint64], vector []float32, topK int, filter Filter) []*QueryMatch {
	matches := make([]*QueryMatch, 0, topK)
	for _, node := range nodes {
		id, ok := ns.keyMap[node.Key]
		if !ok {
			continue // orphaned by an upsert replacement
		}
		rec := ns.records[id]
		if pass, err := Match(rec.Metadata, filter); err != nil || !pass {
			continue
		}
		matches = append(matches, &QueryMatch{
			ID:       id,
			Score:    cosineScore(vector, node.Value),
			Metadata: rec.Metadata,
		})
		if len(matches) >= topK {
			break
		}
	}
	return matches
}

// scan is the brute-force fallback over all records.
func (s *MemoryStore) scan(ns *memoryNamespace, vector []float32, topK int, filter Filter) ([]*QueryMatch, error) {
	matches := make([]*QueryMatch, 0, len(ns.records))
	for id, rec := range ns.records {
		pass, err := Match(rec.Metadata, filter)
		if err != nil {
			return nil, err
		}
		if !pass {
			continue
		}
		matches = append(matches, &QueryMatch{
			ID:       id,
			Score:    cosineScore(vector, rec.Vector),
			Metadata: rec.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Fetch returns records by ID; missing IDs are omitted.
func (s *MemoryStore) Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return []*Record{}, nil
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := ns.records[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ListIDs enumerates all record IDs in the namespace, sorted for
// deterministic iteration.
func (s *MemoryStore) ListIDs(ctx context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(ns.records))
	for id := range ns.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteNamespace removes every record in the namespace.
func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Stats reports vector counts per namespace.
func (s *MemoryStore) Stats(ctx context.Context) (*IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &IndexStats{Namespaces: make(map[string]int, len(s.namespaces))}
	for name, ns := range s.namespaces {
		stats.Namespaces[name] = len(ns.records)
	}
	return stats, nil
}

// Close releases resources.
func (s *MemoryStore) Close() error { return nil }

// cosineScore maps cosine distance into a [0, 1] similarity score.
func cosineScore(a, b []float32) float32 {
	return 1 - hnsw.CosineDistance(a, b)/2
}

// Verify interface implementation.
var _ VectorStore = (*MemoryStore)(nil)
