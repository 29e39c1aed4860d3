package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/logger"
)

// Ensure QueryEngine implements the interface.
var _ driving.QueryService = (*QueryEngine)(nil)

// Query defaults.
const (
	DefaultTopK          = 10
	defaultSnippetLength = 200
)

// QueryConfig tunes the query engine.
type QueryConfig struct {
	// DefaultTopK is the result budget when the caller passes zero.
	DefaultTopK int

	// Fusion configures the RRF ranker.
	Fusion FusionConfig
}

// DefaultQueryConfig returns the standard query configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		DefaultTopK: DefaultTopK,
		Fusion:      DefaultFusionConfig(),
	}
}

// QueryEngine answers queries by fusing the vector and keyword
// retrieval paths. The result cache is consulted before retrieval and
// populated after; cache failures are logged and swallowed because a
// miss only costs a recomputation.
type QueryEngine struct {
	docs     driven.DocumentStore
	index    driven.VectorIndex
	embedder driven.EmbeddingService // optional
	cache    driven.ResultCache      // optional
	cfg      QueryConfig
}

// NewQueryEngine creates the query engine. embedder and cache may be
// nil; without an embedder the vector path is unavailable and hybrid
// degrades to keyword only.
func NewQueryEngine(
	docs driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	cache driven.ResultCache,
	cfg QueryConfig,
) *QueryEngine {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.Fusion.RRFK <= 0 {
		cfg.Fusion = DefaultFusionConfig()
	}

	return &QueryEngine{
		docs:     docs,
		index:    index,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
	}
}

// Query returns ranked, hydrated results for the query text.
func (e *QueryEngine) Query(
	ctx context.Context,
	text string,
	opts domain.QueryOptions,
) ([]domain.QueryResult, error) {
	logger.Section("Query Execution")

	query := domain.NormaliseQuery(text)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.QueryResult{}, nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = domain.SearchModeHybrid
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidInput, mode)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	logger.Debug("Query: %q, mode=%s, topK=%d", query, mode, topK)

	signature := domain.QuerySignature(query, mode, topK, opts.Filter)
	if e.cache != nil {
		if entry, err := e.cache.Get(ctx, signature); err == nil {
			logger.Debug("Cache hit for %q", query)
			return entry.Results, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Cache lookup failed: %v", err)
		}
	}

	ranked, err := e.retrieve(ctx, query, mode, topK, opts.Filter)
	if err != nil {
		return nil, err
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results, err := e.hydrate(ctx, ranked, query)
	if err != nil {
		return nil, fmt.Errorf("hydrating results: %w", err)
	}
	logger.Info("Query %q: %d results", query, len(results))

	if e.cache != nil {
		entry := &domain.CacheEntry{
			QueryHash:    signature,
			QueryText:    query,
			Mode:         mode,
			Results:      results,
			CreatedAt:    time.Now().UTC(),
			LastAccessed: time.Now().UTC(),
		}
		if err := e.cache.Put(ctx, entry); err != nil {
			logger.Warn("Caching results failed: %v", err)
		}
	}

	return results, nil
}

// retrieve runs the retrieval paths for the requested mode.
// Both paths over-fetch so fusion has ranks to work with.
func (e *QueryEngine) retrieve(
	ctx context.Context,
	query string,
	mode domain.SearchMode,
	topK int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	internalLimit := topK * 2

	switch mode {
	case domain.SearchModeKeyword:
		return e.keywordSearch(ctx, query, internalLimit, filter)

	case domain.SearchModeVector:
		return e.vectorSearch(ctx, query, internalLimit, filter)

	default:
		return e.hybridSearch(ctx, query, internalLimit, filter)
	}
}

// keywordSearch runs the FTS path.
func (e *QueryEngine) keywordSearch(
	ctx context.Context,
	query string,
	limit int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	hits, err := e.docs.SearchChunks(ctx, query, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	logger.Debug("Keyword search: %d hits", len(hits))
	return hits, nil
}

// vectorSearch embeds the query and runs the vector path.
func (e *QueryEngine) vectorSearch(
	ctx context.Context,
	query string,
	limit int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	if e.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if e.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := e.index.Search(ctx, embedding, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Vector search: %d hits", len(hits))
	return hits, nil
}

// hybridSearch runs both paths in parallel and fuses their ranked
// lists. One failing path degrades to the other; both failing is an
// error.
func (e *QueryEngine) hybridSearch(
	ctx context.Context,
	query string,
	limit int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	var keywordHits, vectorHits []domain.RankedChunk
	var keywordErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		keywordHits, keywordErr = e.keywordSearch(ctx, query, limit, filter)
	}()

	go func() {
		defer wg.Done()
		vectorHits, vectorErr = e.vectorSearch(ctx, query, limit, filter)
	}()

	wg.Wait()

	if keywordErr != nil && vectorErr != nil {
		return nil, fmt.Errorf("%w: keyword=%v, vector=%v", domain.ErrSearchUnavailable, keywordErr, vectorErr)
	}
	if vectorErr != nil {
		logger.Warn("Vector path failed, degrading to keyword only: %v", vectorErr)
		return keywordHits, nil
	}
	if keywordErr != nil {
		logger.Warn("Keyword path failed, degrading to vector only: %v", keywordErr)
		return vectorHits, nil
	}

	fusedHits := fuse(vectorHits, keywordHits, e.cfg.Fusion)
	logger.Debug("Fused %d vector + %d keyword hits into %d",
		len(vectorHits), len(keywordHits), len(fusedHits))
	return fusedHits, nil
}

// hydrate resolves chunk keys to full results. Chunks or documents
// deleted since retrieval are skipped, not errors.
func (e *QueryEngine) hydrate(
	ctx context.Context,
	ranked []domain.RankedChunk,
	query string,
) ([]domain.QueryResult, error) {
	results := make([]domain.QueryResult, 0, len(ranked))

	for _, rc := range ranked {
		chunk, err := e.docs.GetChunkByKey(ctx, rc.Key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
				continue
			}
			return nil, fmt.Errorf("loading chunk %s: %w", rc.Key, err)
		}

		doc, err := e.docs.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("loading document %d: %w", chunk.DocumentID, err)
		}

		results = append(results, domain.QueryResult{
			ChunkKey:   rc.Key,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Score:      rc.Score,
			Snippet:    makeSnippet(chunk.Content, query, defaultSnippetLength),
			Title:      doc.Title,
			FileName:   doc.FileName,
		})
	}

	return results, nil
}

// Stats reports engine sizes.
func (e *QueryEngine) Stats(ctx context.Context) (*driving.EngineStats, error) {
	storeStats, err := e.docs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store stats: %w", err)
	}

	stats := &driving.EngineStats{Store: *storeStats}
	if e.index != nil {
		stats.Index = e.index.Stats()
	}
	return stats, nil
}

// ClearCache drops all cached query results.
func (e *QueryEngine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}

// makeSnippet returns a window of at most length runes around the
// first query term occurrence, or the leading text when no term
// matches.
func makeSnippet(content, query string, length int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= length {
		return content
	}

	// Find the earliest match of any query term.
	lower := strings.ToLower(content)
	matchAt := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if idx := strings.Index(lower, term); idx >= 0 && (matchAt < 0 || idx < matchAt) {
			matchAt = idx
		}
	}

	if matchAt < 0 {
		return string(runes[:length]) + "..."
	}

	// Centre the window on the match, in rune space.
	matchRune := len([]rune(content[:matchAt]))
	start := matchRune - length/2
	if start < 0 {
		start = 0
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
		start = end - length
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	return snippet
}
