package driving

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// EngineStats aggregates store and index statistics.
type EngineStats struct {
	Store domain.StoreStats
	Index domain.IndexStats
}

// QueryService answers queries by fusing the vector and keyword
// retrieval paths, consulting the result cache before and populating
// it after.
type QueryService interface {
	// Query returns ranked, hydrated results for the query text.
	Query(ctx context.Context, text string, opts domain.QueryOptions) ([]domain.QueryResult, error)

	// Stats reports engine sizes for observability.
	Stats(ctx context.Context) (*EngineStats, error)

	// ClearCache drops all cached query results.
	ClearCache(ctx context.Context) error
}
