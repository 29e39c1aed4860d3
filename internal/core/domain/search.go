package domain

// SearchMode selects which retrieval paths a query exercises.
type SearchMode string

// Search modes. Hybrid fuses the vector and keyword lists with
// weighted Reciprocal Rank Fusion; the single-path modes skip fusion.
const (
	SearchModeHybrid  SearchMode = "hybrid"
	SearchModeVector  SearchMode = "vector"
	SearchModeKeyword SearchMode = "keyword"
)

// Valid reports whether m is a recognised search mode.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeHybrid, SearchModeVector, SearchModeKeyword:
		return true
	}
	return false
}

// QueryOptions configures a query.
type QueryOptions struct {
	// TopK is the maximum number of fused results. Zero means the
	// configured default.
	TopK int

	// Mode selects the retrieval paths. Empty means hybrid.
	Mode SearchMode

	// Filter optionally restricts results by attribution tags.
	Filter *Filter
}

// RankedChunk is one entry of a ranked list: a chunk identity with a
// relevance score. Both retrieval paths and the fusion ranker produce
// ranked lists of this shape.
type RankedChunk struct {
	// Key is the composite chunk identity "{document_id}_{chunk_index}".
	Key string

	// Score is the path-specific relevance score, descending order.
	Score float64
}

// QueryResult is a fused, hydrated search hit returned to callers.
type QueryResult struct {
	// ChunkKey is the composite chunk identity.
	ChunkKey string `json:"chunk_key"`

	// DocumentID is the parent document.
	DocumentID int64 `json:"document_id"`

	// ChunkIndex is the ordinal position within the document.
	ChunkIndex int `json:"chunk_index"`

	// Score is the fused relevance score.
	Score float64 `json:"score"`

	// Snippet is a short window of the chunk text around the best match.
	Snippet string `json:"snippet"`

	// Title is the parent document's title.
	Title string `json:"title"`

	// FileName is the parent document's original file name.
	FileName string `json:"file_name"`
}

// IndexStats reports vector index sizes for observability.
type IndexStats struct {
	// Vectors is the total number of indexed vectors.
	Vectors int

	// Dimensions is the configured embedding dimension.
	Dimensions int

	// Keys is the size of the slot id to chunk key mapping.
	Keys int

	// MetadataEntries is the size of the bounded metadata side cache.
	MetadataEntries int
}
