package driven

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// VectorIndex provides dense similarity search over chunk embeddings.
// Backed by an in-memory flat inner-product index with on-disk
// persistence.
//
// The index is process-wide shared mutable state: implementations must
// allow concurrent reads but give Add, Remove, Persist and Load
// exclusive access, so a reader never observes a half-rebuilt index.
type VectorIndex interface {
	// Add appends vectors for the given chunk keys. All three slices
	// must have equal length and every vector must match the configured
	// dimension. Vectors are L2-normalised before insertion so inner
	// product equals cosine similarity. Slot ids are assigned
	// sequentially in insertion order.
	Add(ctx context.Context, keys []string, vectors [][]float32, meta []domain.ChunkMetadata) error

	// Search returns up to topK chunk keys by descending inner-product
	// score (ties to the earlier-inserted slot). The optional filter is
	// applied after ranking and does not backfill the result count.
	Search(ctx context.Context, query []float32, topK int, filter *domain.Filter) ([]domain.RankedChunk, error)

	// Remove deletes the given keys. The index has no native delete, so
	// removal rebuilds the index from the surviving vectors; cost is
	// O(N) in total indexed vectors.
	Remove(ctx context.Context, keys []string) error

	// Persist writes the index blob and its key-mapping sidecar to disk
	// as one consistent unit, via temp-file-then-rename.
	Persist(ctx context.Context) error

	// Load restores the index from disk. Missing or corrupt files fall
	// back to a fresh empty index; Load never fails startup for those.
	Load(ctx context.Context) error

	// Stats reports index sizes for observability.
	Stats() domain.IndexStats

	// Close releases resources.
	Close() error
}
