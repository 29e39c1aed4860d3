package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// ResultCache memoises fused query results keyed by a query signature.
// The cache is best-effort: callers swallow its errors, and a stale or
// missing entry only costs a recomputation, never a wrong answer.
type ResultCache interface {
	// Get returns the entry for the signature or ErrNotFound.
	// On a hit the entry's hit counter and last-access time are bumped.
	Get(ctx context.Context, queryHash string) (*domain.CacheEntry, error)

	// Put inserts or overwrites the entry for its signature.
	Put(ctx context.Context, entry *domain.CacheEntry) error

	// Evict first deletes entries created more than maxAge ago, then
	// keeps only the maxEntries entries ranked by (hit count desc,
	// last access desc) and deletes the rest. Returns the number of
	// entries removed.
	Evict(ctx context.Context, maxAge time.Duration, maxEntries int) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error
}
