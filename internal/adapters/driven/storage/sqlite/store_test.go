package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// setupTestStore creates a store backed by a temporary directory.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store, func() { store.Close() }
}

func testDocument(name string) *domain.Document {
	return &domain.Document{
		FileName:    name,
		FilePath:    "/managed/" + name,
		FileSize:    42,
		FileType:    "txt",
		ContentHash: "hash-" + name,
		Status:      domain.StatusPending,
		Attribution: domain.Attribution{
			UploadToken: "token-1",
			SessionID:   "session-1",
			UserID:      "user-1",
		},
	}
}

// mustCreate inserts a document and returns its assigned ID.
func mustCreate(t *testing.T, store *Store, doc *domain.Document) int64 {
	t.Helper()
	require.NoError(t, store.DocumentStore().CreateDocument(context.Background(), doc))
	require.NotZero(t, doc.ID)
	return doc.ID
}

func TestDocumentStore_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := testDocument("notes.txt")
	id := mustCreate(t, store, doc)

	got, err := store.DocumentStore().GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.FileName)
	assert.Equal(t, "/managed/notes.txt", got.FilePath)
	assert.Equal(t, "hash-notes.txt", got.ContentHash)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "token-1", got.Attribution.UploadToken)
	assert.Equal(t, "user-1", got.Attribution.UserID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.ProcessedAt.IsZero())
}

func TestDocumentStore_GetDocument_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.DocumentStore().GetDocument(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_UpdateStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("a.txt"))

	require.NoError(t, docs.UpdateStatus(ctx, id, domain.StatusProcessing))
	got, err := docs.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.True(t, got.ProcessedAt.IsZero())

	require.NoError(t, docs.UpdateStatus(ctx, id, domain.StatusProcessed))
	got, err = docs.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, got.Status)
	assert.False(t, got.ProcessedAt.IsZero())

	assert.ErrorIs(t, docs.UpdateStatus(ctx, id, "bogus"), domain.ErrInvalidInput)
	assert.ErrorIs(t, docs.UpdateStatus(ctx, 999, domain.StatusFailed), domain.ErrNotFound)
}

func TestDocumentStore_UpdateContent_MirrorsDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("guide.txt"))

	err := docs.UpdateContent(ctx, id, "Deployment Guide",
		"How to deploy the service to production.",
		"Deployment instructions.", "deploy production service")
	require.NoError(t, err)

	got, err := docs.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Deployment Guide", got.Title)
	assert.Equal(t, "deploy production service", got.Keywords)

	// The mirror row was rewritten in the same transaction, so document
	// search sees the new content immediately.
	summaries, err := docs.SearchDocuments(ctx, "deployment", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)

	assert.ErrorIs(t, docs.UpdateContent(ctx, 999, "t", "c", "s", "k"), domain.ErrNotFound)
}

func TestDocumentStore_FindByContentHash(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	first := testDocument("a.txt")
	first.ContentHash = "same-hash"
	mustCreate(t, store, first)

	second := testDocument("b.txt")
	second.ContentHash = "same-hash"
	secondID := mustCreate(t, store, second)

	got, err := docs.FindByContentHash(ctx, "same-hash")
	require.NoError(t, err)
	assert.Equal(t, secondID, got.ID, "most recent duplicate wins")

	_, err = docs.FindByContentHash(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListDocuments(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	var ids []int64
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		ids = append(ids, mustCreate(t, store, testDocument(name)))
	}
	require.NoError(t, docs.UpdateStatus(ctx, ids[0], domain.StatusFailed))

	page, err := docs.ListDocuments(ctx, nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, ids[4], page.Documents[0].ID, "newest first")
	assert.Equal(t, ids[3], page.Documents[1].ID)

	page, err = docs.ListDocuments(ctx, nil, 2, 4)
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, ids[0], page.Documents[0].ID)

	failed := domain.StatusFailed
	page, err = docs.ListDocuments(ctx, &failed, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, ids[0], page.Documents[0].ID)
}

func TestDocumentStore_SaveAndGetChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("a.txt"))

	chunks := []domain.Chunk{
		{DocumentID: id, ChunkIndex: 0, Content: "first chunk", TokenCount: 2, Embedding: []float32{0.1, 0.2}},
		{DocumentID: id, ChunkIndex: 1, Content: "second chunk", TokenCount: 2, Embedding: []float32{0.3, 0.4}},
	}
	require.NoError(t, docs.SaveChunks(ctx, chunks))
	assert.NotZero(t, chunks[0].ID)
	assert.NotZero(t, chunks[1].ID)

	got, err := docs.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, "first chunk", got[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, got[0].Embedding)

	chunk, err := docs.GetChunkByKey(ctx, domain.ChunkKey(id, 1))
	require.NoError(t, err)
	assert.Equal(t, "second chunk", chunk.Content)

	_, err = docs.GetChunkByKey(ctx, domain.ChunkKey(id, 7))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = docs.GetChunkByKey(ctx, "not-a-key")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_DeleteDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("a.txt"))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{DocumentID: id, ChunkIndex: 0, Content: "alpha beta"},
		{DocumentID: id, ChunkIndex: 1, Content: "gamma delta"},
	}))

	removed, err := docs.DeleteDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = docs.GetDocument(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := docs.GetChunks(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Mirror rows are gone too: the deleted text is no longer findable.
	hits, err := docs.SearchChunks(ctx, "alpha", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = docs.DeleteDocument(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SearchChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("a.txt"))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{DocumentID: id, ChunkIndex: 0, Content: "the deployment runs on the production cluster"},
		{DocumentID: id, ChunkIndex: 1, Content: "local development setup instructions"},
	}))

	hits, err := docs.SearchChunks(ctx, "deployment", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.ChunkKey(id, 0), hits[0].Key)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9, "best hit is normalised to 1.0")

	// Porter stemming: "running" matches "runs".
	hits, err = docs.SearchChunks(ctx, "running", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.ChunkKey(id, 0), hits[0].Key)

	hits, err = docs.SearchChunks(ctx, "", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDocumentStore_SearchChunks_AttributionFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	mine := testDocument("mine.txt")
	mine.Attribution.UploadToken = "token-mine"
	mineID := mustCreate(t, store, mine)

	other := testDocument("other.txt")
	other.Attribution.UploadToken = "token-other"
	otherID := mustCreate(t, store, other)

	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{DocumentID: mineID, ChunkIndex: 0, Content: "shared keyword payload"},
		{DocumentID: otherID, ChunkIndex: 0, Content: "shared keyword payload"},
	}))

	filter := domain.NewAttributionFilter(domain.Attribution{UploadToken: "token-mine"})
	hits, err := docs.SearchChunks(ctx, "payload", 10, filter)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.ChunkKey(mineID, 0), hits[0].Key)
}

func TestFilterColumn_CoversAllFields(t *testing.T) {
	fields := map[domain.FilterField]string{
		domain.FilterUploadToken: "d.upload_token",
		domain.FilterSessionID:   "d.session_id",
		domain.FilterUserID:      "d.user_id",
		domain.FilterDocumentID:  "d.id",
	}
	for field, want := range fields {
		column, err := filterColumn(field)
		require.NoError(t, err, "field %q", field)
		assert.Equal(t, want, column)
	}

	_, err := filterColumn(domain.FilterField("bogus"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_SearchChunks_QuotesUserInput(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	id := mustCreate(t, store, testDocument("a.txt"))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{DocumentID: id, ChunkIndex: 0, Content: "plain content"},
	}))

	// FTS5 operators and quotes in user input must not break the query.
	for _, q := range []string{`"unbalanced`, "NEAR(", "a AND", "col:value", "x*"} {
		_, err := docs.SearchChunks(ctx, q, 10, nil)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestDocumentStore_Stats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	a := mustCreate(t, store, testDocument("a.txt"))
	mustCreate(t, store, testDocument("b.txt"))
	require.NoError(t, docs.UpdateStatus(ctx, a, domain.StatusProcessed))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{DocumentID: a, ChunkIndex: 0, Content: "x"},
		{DocumentID: a, ChunkIndex: 1, Content: "y"},
	}))

	stats, err := docs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 1, stats.ByStatus[domain.StatusProcessed])
	assert.Equal(t, 1, stats.ByStatus[domain.StatusPending])
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 0, stats.CacheEntries)
}

// ==================== Result Cache ====================

func testCacheEntry(hash string) *domain.CacheEntry {
	return &domain.CacheEntry{
		QueryHash: hash,
		QueryText: "some query",
		Mode:      domain.SearchModeHybrid,
		Results: []domain.QueryResult{
			{ChunkKey: "1_0", DocumentID: 1, ChunkIndex: 0, Score: 0.9, Snippet: "...", Title: "T", FileName: "a.txt"},
		},
	}
}

func TestResultCache_PutAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cache := store.ResultCache()

	require.NoError(t, cache.Put(ctx, testCacheEntry("hash-1")))

	got, err := cache.Get(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "some query", got.QueryText)
	assert.Equal(t, domain.SearchModeHybrid, got.Mode)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "1_0", got.Results[0].ChunkKey)
	assert.Equal(t, 1, got.HitCount, "first hit bumps the counter")

	got, err = cache.Get(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.HitCount)

	_, err = cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResultCache_Evict_ByAge(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cache := store.ResultCache()

	stale := testCacheEntry("stale")
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, cache.Put(ctx, stale))
	require.NoError(t, cache.Put(ctx, testCacheEntry("fresh")))

	removed, err := cache.Evict(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = cache.Get(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = cache.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestResultCache_Evict_KeepsMostUsed(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cache := store.ResultCache()

	require.NoError(t, cache.Put(ctx, testCacheEntry("popular")))
	require.NoError(t, cache.Put(ctx, testCacheEntry("quiet")))
	require.NoError(t, cache.Put(ctx, testCacheEntry("idle")))

	// Three hits for popular, one for quiet, none for idle.
	for i := 0; i < 3; i++ {
		_, err := cache.Get(ctx, "popular")
		require.NoError(t, err)
	}
	_, err := cache.Get(ctx, "quiet")
	require.NoError(t, err)

	removed, err := cache.Evict(ctx, 24*time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = cache.Get(ctx, "idle")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = cache.Get(ctx, "popular")
	assert.NoError(t, err)
	_, err = cache.Get(ctx, "quiet")
	assert.NoError(t, err)
}

func TestResultCache_Clear(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	cache := store.ResultCache()

	require.NoError(t, cache.Put(ctx, testCacheEntry("one")))
	require.NoError(t, cache.Put(ctx, testCacheEntry("two")))
	require.NoError(t, cache.Clear(ctx))

	_, err := cache.Get(ctx, "one")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := store.DocumentStore().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CacheEntries)
}
