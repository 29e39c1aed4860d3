package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// fakeDocStore is an in-memory DocumentStore for service tests.
type fakeDocStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]*domain.Document
	chunks map[int64][]domain.Chunk

	searchErr  error
	chunkGets  int
	searchHits int
}

var _ driven.DocumentStore = (*fakeDocStore)(nil)

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		docs:   make(map[int64]*domain.Document),
		chunks: make(map[int64][]domain.Chunk),
	}
}

func (f *fakeDocStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doc.ID = f.nextID
	doc.CreatedAt = time.Now().UTC()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocStore) UpdateStatus(_ context.Context, id int64, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	if status == domain.StatusProcessed {
		doc.ProcessedAt = time.Now().UTC()
	}
	return nil
}

func (f *fakeDocStore) UpdateContent(_ context.Context, id int64, title, content, summary, keywords string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Title, doc.Content, doc.Summary, doc.Keywords = title, content, summary, keywords
	return nil
}

func (f *fakeDocStore) GetDocument(_ context.Context, id int64) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) FindByContentHash(_ context.Context, hash string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *domain.Document
	for _, doc := range f.docs {
		if doc.ContentHash == hash && (found == nil || doc.ID > found.ID) {
			found = doc
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	copied := *found
	return &copied, nil
}

func (f *fakeDocStore) ListDocuments(
	_ context.Context,
	status *domain.DocumentStatus,
	limit, offset int,
) (*domain.DocumentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []domain.DocumentSummary
	for _, doc := range f.docs {
		if status != nil && doc.Status != *status {
			continue
		}
		all = append(all, domain.DocumentSummary{
			ID: doc.ID, FileName: doc.FileName, FileType: doc.FileType,
			FileSize: doc.FileSize, Title: doc.Title, Status: doc.Status,
			CreatedAt: doc.CreatedAt, ProcessedAt: doc.ProcessedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return &domain.DocumentPage{Documents: all, Total: total}, nil
}

func (f *fakeDocStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range chunks {
		chunks[i].ID = int64(i + 1)
		f.chunks[chunks[i].DocumentID] = append(f.chunks[chunks[i].DocumentID], chunks[i])
	}
	return nil
}

func (f *fakeDocStore) GetChunks(_ context.Context, documentID int64) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.Chunk(nil), f.chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeDocStore) GetChunkByKey(_ context.Context, key string) (*domain.Chunk, error) {
	documentID, chunkIndex, err := domain.ParseChunkKey(key)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkGets++
	for _, chunk := range f.chunks[documentID] {
		if chunk.ChunkIndex == chunkIndex {
			copied := chunk
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDocStore) DeleteDocument(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return 0, domain.ErrNotFound
	}
	removed := len(f.chunks[id])
	delete(f.docs, id)
	delete(f.chunks, id)
	return removed, nil
}

// SearchChunks does naive substring matching, ranked by match count.
func (f *fakeDocStore) SearchChunks(
	_ context.Context,
	query string,
	limit int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchHits++
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []domain.RankedChunk
	for docID, chunks := range f.chunks {
		doc := f.docs[docID]
		if doc == nil {
			continue
		}
		if filter != nil && !filter.Matches(domain.ChunkMetadata{
			DocumentID: docID, Attribution: doc.Attribution,
		}) {
			continue
		}
		for _, chunk := range chunks {
			content := strings.ToLower(chunk.Content)
			score := 0.0
			for _, term := range terms {
				if strings.Contains(content, term) {
					score += 1.0
				}
			}
			if score > 0 {
				hits = append(hits, domain.RankedChunk{Key: chunk.Key(), Score: score})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key < hits[j].Key
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeDocStore) SearchDocuments(
	_ context.Context,
	query string,
	limit int,
) ([]domain.DocumentSummary, error) {
	return nil, nil
}

func (f *fakeDocStore) Stats(_ context.Context) (*domain.StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &domain.StoreStats{ByStatus: make(map[domain.DocumentStatus]int)}
	for _, doc := range f.docs {
		stats.TotalDocuments++
		stats.ByStatus[doc.Status]++
	}
	for _, chunks := range f.chunks {
		stats.TotalChunks += len(chunks)
	}
	return stats, nil
}

// fakeIndex is an in-memory VectorIndex recording calls.
type fakeIndex struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	meta     map[string]domain.ChunkMetadata
	persists int

	searchHits []domain.RankedChunk
	searchErr  error
}

var _ driven.VectorIndex = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		vectors: make(map[string][]float32),
		meta:    make(map[string]domain.ChunkMetadata),
	}
}

func (f *fakeIndex) Add(_ context.Context, keys []string, vectors [][]float32, meta []domain.ChunkMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, key := range keys {
		f.vectors[key] = vectors[i]
		if meta != nil {
			f.meta[key] = meta[i]
		}
	}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, topK int, filter *domain.Filter) ([]domain.RankedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.searchHits
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeIndex) Remove(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.vectors, key)
		delete(f.meta, key)
	}
	return nil
}

func (f *fakeIndex) Persist(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persists++
	return nil
}

func (f *fakeIndex) Load(_ context.Context) error { return nil }

func (f *fakeIndex) Stats() domain.IndexStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.IndexStats{
		Vectors:         len(f.vectors),
		Keys:            len(f.vectors),
		MetadataEntries: len(f.meta),
	}
}

func (f *fakeIndex) Close() error { return nil }

// fakeEmbedder returns fixed-size vectors derived from text length.
type fakeEmbedder struct {
	err error
}

var _ driven.EmbeddingService = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 3 }
func (f *fakeEmbedder) ModelName() string            { return "fake-embedder" }
func (f *fakeEmbedder) Ping(_ context.Context) error { return f.err }
func (f *fakeEmbedder) Close() error                 { return nil }

// fakeCache is an in-memory ResultCache.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	puts    int
}

var _ driven.ResultCache = (*fakeCache)(nil)

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.CacheEntry)}
}

func (f *fakeCache) Get(_ context.Context, queryHash string) (*domain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[queryHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	entry.HitCount++
	entry.LastAccessed = time.Now().UTC()
	copied := *entry
	return &copied, nil
}

func (f *fakeCache) Put(_ context.Context, entry *domain.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries[entry.QueryHash] = &copied
	f.puts++
	return nil
}

func (f *fakeCache) Evict(_ context.Context, maxAge time.Duration, maxEntries int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	cutoff := time.Now().UTC().Add(-maxAge)
	for hash, entry := range f.entries {
		if entry.CreatedAt.Before(cutoff) {
			delete(f.entries, hash)
			removed++
		}
	}
	for len(f.entries) > maxEntries {
		for hash := range f.entries {
			delete(f.entries, hash)
			removed++
			break
		}
	}
	return removed, nil
}

func (f *fakeCache) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]*domain.CacheEntry)
	return nil
}

// fakeSchedulerStore keeps task state in memory.
type fakeSchedulerStore struct {
	mu      sync.Mutex
	tasks   map[string]*domain.ScheduledTask
	results []domain.TaskResult
}

var _ driven.SchedulerStore = (*fakeSchedulerStore)(nil)

func newFakeSchedulerStore() *fakeSchedulerStore {
	return &fakeSchedulerStore{tasks: make(map[string]*domain.ScheduledTask)}
}

func (f *fakeSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (f *fakeSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ScheduledTask
	for _, task := range f.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, *result)
	return nil
}

func (f *fakeSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskResult
	for i := len(f.results) - 1; i >= 0 && len(out) < limit; i-- {
		if f.results[i].TaskID == taskID {
			out = append(out, f.results[i])
		}
	}
	return out, nil
}

func (f *fakeSchedulerStore) PruneHistory(_ context.Context, keep int) error { return nil }

// errorf builds comparable test errors.
func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
