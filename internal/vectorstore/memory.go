package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

// memoryCollection holds one HNSW graph plus the id<->key and metadata
// bookkeeping for a single collection. Deletion is lazy (the teacher's
// store.HNSWStore pattern): keys are dropped from the mappings rather than
// removed from the graph, since coder/hnsw does not support safe node
// removal.
type memoryCollection struct {
	graph      *hnsw.Graph[uint64]
	dimensions int
	idToKey    map[string]uint64
	keyToID    map[uint64]string
	metadata   map[string]map[string]string
	vectors    map[uint64][]float32
	nextKey    uint64
}

func newMemoryCollection(dimensions int) *memoryCollection {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &memoryCollection{
		graph:      g,
		dimensions: dimensions,
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
		metadata:   make(map[string]map[string]string),
		vectors:    make(map[uint64][]float32),
	}
}

// MemoryStore is the in-process vector backend, one coder/hnsw graph per
// collection, selected via config.VectorStoreConfig.Backend == "memory".
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryStore) CreateCollection(_ context.Context, name string, dimensions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.collections[name]; ok {
		if existing.dimensions != dimensions {
			return mcberrors.DimensionMismatchError(existing.dimensions, dimensions)
		}
		return nil
	}
	m.collections[name] = newMemoryCollection(dimensions)
	return nil
}

func (m *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) InsertVectors(_ context.Context, name string, vectors [][]float32, metadata []map[string]string) ([]string, error) {
	if len(vectors) != len(metadata) {
		return nil, mcberrors.InvalidArgumentError("vectors", "must have the same length as metadata")
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFoundError(name)
	}

	ids := make([]string, 0, len(vectors))
	for start := 0; start < len(vectors); start += MaxInsertBatch {
		end := start + MaxInsertBatch
		if end > len(vectors) {
			end = len(vectors)
		}
		for i := start; i < end; i++ {
			vec := vectors[i]
			if len(vec) != col.dimensions {
				return ids, mcberrors.DimensionMismatchError(col.dimensions, len(vec))
			}
			id := uuid.NewString()
			key := col.nextKey
			col.nextKey++

			normalized := make([]float32, len(vec))
			copy(normalized, vec)
			normalizeInPlace(normalized)

			col.graph.Add(hnsw.MakeNode(key, normalized))
			col.idToKey[id] = key
			col.keyToID[key] = id
			col.metadata[id] = metadata[i]
			col.vectors[key] = normalized
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) SearchSimilar(_ context.Context, name string, query []float32, limit int, filter string) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFoundError(name)
	}
	if limit <= 0 {
		return []SearchResult{}, nil
	}
	if len(query) != col.dimensions {
		return nil, mcberrors.DimensionMismatchError(col.dimensions, len(query))
	}
	if col.graph.Len() == 0 {
		return []SearchResult{}, nil
	}

	want := parseFilter(filter)

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for filtered-out / orphaned (lazily deleted) hits.
	k := limit * 4
	if k < limit {
		k = limit
	}
	nodes := col.graph.Search(normalized, k)

	results := make([]SearchResult, 0, limit)
	for _, node := range nodes {
		id, ok := col.keyToID[node.Key]
		if !ok {
			continue
		}
		md := col.metadata[id]
		if !matchesFilter(md, want) {
			continue
		}
		distance := col.graph.Distance(normalized, node.Value)
		results = append(results, SearchResult{
			Record: Record{ID: id, Vector: node.Value, Metadata: md},
			Score:  cosineDistanceToScore(distance),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *MemoryStore) DeleteVectors(_ context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[name]
	if !ok {
		return mcberrors.CollectionNotFoundError(name)
	}
	for _, id := range ids {
		if key, exists := col.idToKey[id]; exists {
			delete(col.keyToID, key)
			delete(col.idToKey, id)
			delete(col.metadata, id)
			delete(col.vectors, key)
		}
	}
	return nil
}

func (m *MemoryStore) GetVectorsByIDs(_ context.Context, name string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFoundError(name)
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		key, exists := col.idToKey[id]
		if !exists {
			continue
		}
		out = append(out, Record{ID: id, Vector: col.vectors[key], Metadata: col.metadata[id]})
	}
	return out, nil
}

func (m *MemoryStore) ListVectors(_ context.Context, name string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFoundError(name)
	}
	if limit <= 0 {
		return []Record{}, nil
	}

	ids := make([]string, 0, len(col.idToKey))
	for id := range col.idToKey {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		key := col.idToKey[id]
		out = append(out, Record{ID: id, Vector: col.vectors[key], Metadata: col.metadata[id]})
	}
	return out, nil
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) GetStats(_ context.Context, name string) (CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[name]
	if !ok {
		return CollectionStats{}, mcberrors.CollectionNotFoundError(name)
	}
	return CollectionStats{Name: name, Dimensions: col.dimensions, VectorsCount: len(col.idToKey)}, nil
}
