// Package flat provides an in-memory flat inner-product vector index.
//
// Vectors are L2-normalised on insertion so inner-product similarity
// equals cosine similarity. Search is exact: the query is scored
// against every indexed vector. Removal rebuilds the index from the
// surviving vectors, so deletes are O(N) and callers must not assume
// they are cheap.
package flat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultMetadataLimit is the default ceiling for the metadata side cache.
const DefaultMetadataLimit = 10000

// Index is a flat inner-product vector index with a bidirectional
// slot id <-> chunk key mapping and a bounded metadata side cache.
//
// All exported methods are safe for concurrent use. Readers share the
// lock; Add, Remove, Persist and Load take it exclusively so a reader
// never observes a half-rebuilt index.
type Index struct {
	mu sync.RWMutex

	dim      int
	path     string
	metaPath string
	maxMeta  int

	// vectors[slot] is the normalised vector stored at that slot.
	// keys[slot] is the chunk key for the slot; slots is the reverse map.
	vectors [][]float32
	keys    []string
	slots   map[string]int

	// meta is the bounded side cache; metaOrder tracks insertion order
	// for coarse oldest-half eviction.
	meta      map[string]domain.ChunkMetadata
	metaOrder []string
}

// Option configures the index.
type Option func(*Index)

// WithMetadataLimit sets the metadata side cache ceiling.
func WithMetadataLimit(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.maxMeta = n
		}
	}
}

// New creates an empty index of the given dimension. path is the
// on-disk location of the vector blob; the key mapping and metadata
// cache are persisted alongside it in a sidecar file.
func New(dim int, path string, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}

	idx := &Index{
		dim:      dim,
		path:     path,
		metaPath: path + ".map.json",
		maxMeta:  DefaultMetadataLimit,
		slots:    make(map[string]int),
		meta:     make(map[string]domain.ChunkMetadata),
	}

	for _, opt := range opts {
		opt(idx)
	}

	return idx, nil
}

// Add appends vectors for the given chunk keys.
func (idx *Index) Add(_ context.Context, keys []string, vectors [][]float32, meta []domain.ChunkMetadata) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("%w: %d keys for %d vectors", domain.ErrInvalidInput, len(keys), len(vectors))
	}
	if meta != nil && len(meta) != len(keys) {
		return fmt.Errorf("%w: %d metadata entries for %d keys", domain.ErrInvalidInput, len(meta), len(keys))
	}
	for _, v := range vectors {
		if len(v) != idx.dim {
			return fmt.Errorf("%w: got %d, index dimension is %d", domain.ErrDimensionMismatch, len(v), idx.dim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, key := range keys {
		if _, exists := idx.slots[key]; exists {
			return fmt.Errorf("%w: chunk key %q already indexed", domain.ErrAlreadyExists, key)
		}
	}

	for i, key := range keys {
		v := normalise(vectors[i])
		idx.slots[key] = len(idx.vectors)
		idx.vectors = append(idx.vectors, v)
		idx.keys = append(idx.keys, key)

		if meta != nil {
			idx.putMetadata(key, meta[i])
		}
	}

	return nil
}

// Search returns up to topK chunk keys by descending inner-product score.
// The optional filter is applied after ranking and does not backfill.
func (idx *Index) Search(_ context.Context, query []float32, topK int, filter *domain.Filter) ([]domain.RankedChunk, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", domain.ErrDimensionMismatch, len(query), idx.dim)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", domain.ErrInvalidInput)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return []domain.RankedChunk{}, nil
	}

	q := normalise(query)

	type slotScore struct {
		slot  int
		score float64
	}
	scored := make([]slotScore, len(idx.vectors))
	for slot, v := range idx.vectors {
		scored[slot] = slotScore{slot: slot, score: dot(q, v)}
	}

	// Descending score; ties go to the earlier-inserted slot.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].slot < scored[j].slot
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	scored = scored[:topK]

	results := make([]domain.RankedChunk, 0, len(scored))
	for _, s := range scored {
		key := idx.keys[s.slot]
		if filter != nil {
			// Entries without cached metadata pass the filter; callers
			// refetch from the store when they need authoritative tags.
			if m, ok := idx.meta[key]; ok && !filter.Matches(m) {
				continue
			}
		}
		results = append(results, domain.RankedChunk{Key: key, Score: s.score})
	}

	return results, nil
}

// Remove deletes the given keys by rebuilding the index from survivors.
func (idx *Index) Remove(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := make(map[string]bool, len(keys))
	for _, key := range keys {
		removed[key] = true
	}

	vectors := make([][]float32, 0, len(idx.vectors))
	survivors := make([]string, 0, len(idx.keys))
	slots := make(map[string]int, len(idx.slots))

	for slot, key := range idx.keys {
		if removed[key] {
			continue
		}
		slots[key] = len(vectors)
		vectors = append(vectors, idx.vectors[slot])
		survivors = append(survivors, key)
	}

	idx.vectors = vectors
	idx.keys = survivors
	idx.slots = slots

	for key := range removed {
		delete(idx.meta, key)
	}
	order := idx.metaOrder[:0]
	for _, key := range idx.metaOrder {
		if !removed[key] {
			order = append(order, key)
		}
	}
	idx.metaOrder = order

	return nil
}

// Stats reports index sizes.
func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return domain.IndexStats{
		Vectors:         len(idx.vectors),
		Dimensions:      idx.dim,
		Keys:            len(idx.slots),
		MetadataEntries: len(idx.meta),
	}
}

// Close releases resources. The in-memory index has none; callers are
// expected to Persist before shutdown.
func (idx *Index) Close() error {
	return nil
}

// putMetadata stores metadata for a key, evicting roughly the oldest
// half of the cache when the ceiling is exceeded. Eviction is coarse
// by design: metadata can be refetched from the relational store.
func (idx *Index) putMetadata(key string, m domain.ChunkMetadata) {
	if _, exists := idx.meta[key]; !exists {
		idx.metaOrder = append(idx.metaOrder, key)
	}
	idx.meta[key] = m

	if len(idx.meta) <= idx.maxMeta {
		return
	}

	evict := len(idx.metaOrder) / 2
	for _, old := range idx.metaOrder[:evict] {
		delete(idx.meta, old)
	}
	idx.metaOrder = append([]string(nil), idx.metaOrder[evict:]...)
}

// normalise returns an L2-normalised copy of v. A zero vector is
// returned unchanged.
func normalise(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
