package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to
// all metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.quarry/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".quarry", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ResultCache returns a ResultCache interface backed by this store.
func (s *Store) ResultCache() driven.ResultCache {
	return &resultCache{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore. Writes that touch
// mirrored content update the FTS tables inside the same transaction;
// the fts rowid always equals the base row's id.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// CreateDocument stores a new document and assigns its ID.
func (s *documentStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrInvalidInput, doc.Status)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents
			(file_name, file_path, file_size, file_type, content_hash,
			 title, content, summary, keywords, status,
			 upload_token, session_id, user_id,
			 created_at, updated_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.FileName, doc.FilePath, doc.FileSize, doc.FileType, doc.ContentHash,
		doc.Title, doc.Content, doc.Summary, doc.Keywords, string(doc.Status),
		doc.Attribution.UploadToken, doc.Attribution.SessionID, doc.Attribution.UserID,
		doc.CreatedAt, doc.UpdatedAt, formatNullableTime(doc.ProcessedAt))
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting document id: %w", err)
	}
	doc.ID = id

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents_fts (rowid, title, content, keywords)
		VALUES (?, ?, ?, ?)
	`, id, doc.Title, doc.Content, doc.Keywords)
	if err != nil {
		return fmt.Errorf("mirroring document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UpdateStatus transitions a document's lifecycle state. The processed
// timestamp is set when the document reaches processed.
func (s *documentStore) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrInvalidInput, status)
	}

	now := time.Now().UTC()
	var res sql.Result
	var err error
	if status == domain.StatusProcessed {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE documents SET status = ?, updated_at = ?, processed_at = ? WHERE id = ?
		`, string(status), now, now.Format(time.RFC3339), id)
	} else {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE documents SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateContent stores the extracted title, full text, summary and
// keywords, rewriting the document's full-text mirror row in the same
// transaction.
func (s *documentStore) UpdateContent(ctx context.Context, id int64, title, content, summary, keywords string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET title = ?, content = ?, summary = ?, keywords = ?, updated_at = ?
		WHERE id = ?
	`, title, content, summary, keywords, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating content: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("clearing document mirror: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents_fts (rowid, title, content, keywords)
		VALUES (?, ?, ?, ?)
	`, id, title, content, keywords)
	if err != nil {
		return fmt.Errorf("mirroring document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// FindByContentHash returns the most recent document with the given
// content hash.
func (s *documentStore) FindByContentHash(ctx context.Context, hash string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		documentColumns+" FROM documents WHERE content_hash = ? ORDER BY id DESC LIMIT 1", hash)
	return scanDocument(row)
}

// ListDocuments returns a page of document summaries, newest first.
func (s *documentStore) ListDocuments(
	ctx context.Context,
	status *domain.DocumentStatus,
	limit, offset int,
) (*domain.DocumentPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	countArgs := []any{}
	if status != nil {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: invalid status %q", domain.ErrInvalidInput, *status)
		}
		where = " WHERE status = ?"
		countArgs = append(countArgs, string(*status))
	}

	var total int
	err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents"+where, countArgs...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	args := append(append([]any{}, countArgs...), limit, offset)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, file_name, file_type, file_size, title, status, created_at, processed_at
		FROM documents`+where+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DocumentSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sum domain.DocumentSummary
		var docStatus string
		var processedAt sql.NullString
		if err := rows.Scan(&sum.ID, &sum.FileName, &sum.FileType, &sum.FileSize,
			&sum.Title, &docStatus, &sum.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning document summary: %w", err)
		}
		sum.Status = domain.DocumentStatus(docStatus)
		sum.ProcessedAt = parseNullableTime(processedAt)
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return &domain.DocumentPage{Documents: summaries, Total: total}, nil
}

// SaveChunks stores all chunks in one transaction, mirroring each
// chunk's text into the full-text index.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, content, token_count, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts (rowid, content) VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing mirror statement: %w", err)
	}
	defer ftsStmt.Close()

	for i := range chunks {
		chunk := &chunks[i]
		embeddingBlob := float32SliceToBytes(chunk.Embedding)

		res, err := stmt.ExecContext(ctx, chunk.DocumentID, chunk.ChunkIndex,
			chunk.Content, chunk.TokenCount, embeddingBlob)
		if err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.Key(), err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting chunk id: %w", err)
		}
		chunk.ID = id

		if _, err := ftsStmt.ExecContext(ctx, id, chunk.Content); err != nil {
			return fmt.Errorf("mirroring chunk %s: %w", chunk.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document in index order.
func (s *documentStore) GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var embeddingBlob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex,
			&chunk.Content, &chunk.TokenCount, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunkByKey retrieves a chunk by its composite key.
func (s *documentStore) GetChunkByKey(ctx context.Context, key string) (*domain.Chunk, error) {
	documentID, chunkIndex, err := domain.ParseChunkKey(key)
	if err != nil {
		return nil, err
	}

	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, embedding
		FROM chunks WHERE document_id = ? AND chunk_index = ?
	`, documentID, chunkIndex)

	var chunk domain.Chunk
	var embeddingBlob []byte
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex,
		&chunk.Content, &chunk.TokenCount, &embeddingBlob); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)

	return &chunk, nil
}

// DeleteDocument removes a document, its chunks and all mirror rows in
// one transaction, returning the number of chunk rows removed.
func (s *documentStore) DeleteDocument(ctx context.Context, id int64) (int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var chunkCount int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", id).Scan(&chunkCount)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE document_id = ?)
	`, id)
	if err != nil {
		return 0, fmt.Errorf("clearing chunk mirrors: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts WHERE rowid = ?", id); err != nil {
		return 0, fmt.Errorf("clearing document mirror: %w", err)
	}

	// Chunk rows go with the document via ON DELETE CASCADE.
	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("deleting document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete: %w", err)
	}
	if affected == 0 {
		return 0, domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return chunkCount, nil
}

// SearchChunks runs a keyword query against the chunk mirror. Scores
// are bm25 relevance normalised so the best hit scores 1.0.
func (s *documentStore) SearchChunks(
	ctx context.Context,
	query string,
	limit int,
	filter *domain.Filter,
) ([]domain.RankedChunk, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []domain.RankedChunk{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	filterSQL, filterArgs, err := buildFilterClause(filter)
	if err != nil {
		return nil, err
	}

	args := append([]any{match}, filterArgs...)
	args = append(args, limit)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.document_id, c.chunk_index, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?`+filterSQL+`
		ORDER BY rank
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	type hit struct {
		key  string
		rank float64
	}
	var hits []hit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var documentID int64
		var chunkIndex int
		var rank float64
		if err := rows.Scan(&documentID, &chunkIndex, &rank); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, hit{key: domain.ChunkKey(documentID, chunkIndex), rank: rank})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search hits: %w", err)
	}

	// bm25 ranks are negative, more negative is more relevant. Flip to
	// positive relevance and scale so the best hit scores 1.0.
	results := make([]domain.RankedChunk, len(hits))
	var maxRel float64
	for _, h := range hits {
		if rel := -h.rank; rel > maxRel {
			maxRel = rel
		}
	}
	for i, h := range hits {
		score := 0.0
		if maxRel > 0 {
			score = -h.rank / maxRel
			if score < 0 {
				score = 0
			}
		}
		results[i] = domain.RankedChunk{Key: h.key, Score: score}
	}

	return results, nil
}

// SearchDocuments runs a keyword query against the document mirror.
func (s *documentStore) SearchDocuments(
	ctx context.Context,
	query string,
	limit int,
) ([]domain.DocumentSummary, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []domain.DocumentSummary{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT d.id, d.file_name, d.file_type, d.file_size, d.title, d.status, d.created_at, d.processed_at
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY bm25(documents_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DocumentSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sum domain.DocumentSummary
		var status string
		var processedAt sql.NullString
		if err := rows.Scan(&sum.ID, &sum.FileName, &sum.FileType, &sum.FileSize,
			&sum.Title, &status, &sum.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning document summary: %w", err)
		}
		sum.Status = domain.DocumentStatus(status)
		sum.ProcessedAt = parseNullableTime(processedAt)
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document summaries: %w", err)
	}

	return summaries, nil
}

// Stats reports store sizes.
func (s *documentStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{
		ByStatus: make(map[domain.DocumentStatus]int),
	}

	rows, err := s.store.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		stats.ByStatus[domain.DocumentStatus(status)] = count
		stats.TotalDocuments += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	err = s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	err = s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_cache").Scan(&stats.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("counting cache entries: %w", err)
	}

	return stats, nil
}

// ==================== Result Cache ====================

// resultCache implements driven.ResultCache over the search_cache table.
type resultCache struct {
	store *Store
}

var _ driven.ResultCache = (*resultCache)(nil)

// Get returns the entry for the signature, bumping its hit counter and
// last-access time.
func (c *resultCache) Get(ctx context.Context, queryHash string) (*domain.CacheEntry, error) {
	res, err := c.store.db.ExecContext(ctx, `
		UPDATE search_cache SET hit_count = hit_count + 1, last_accessed = ? WHERE query_hash = ?
	`, time.Now().UTC(), queryHash)
	if err != nil {
		return nil, fmt.Errorf("touching cache entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking cache touch: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrNotFound
	}

	row := c.store.db.QueryRowContext(ctx, `
		SELECT query_hash, query_text, mode, results, hit_count, created_at, last_accessed
		FROM search_cache WHERE query_hash = ?
	`, queryHash)

	var entry domain.CacheEntry
	var mode, resultsJSON string
	if err := row.Scan(&entry.QueryHash, &entry.QueryText, &mode, &resultsJSON,
		&entry.HitCount, &entry.CreatedAt, &entry.LastAccessed); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}

	entry.Mode = domain.SearchMode(mode)
	if err := json.Unmarshal([]byte(resultsJSON), &entry.Results); err != nil {
		return nil, fmt.Errorf("unmarshaling cached results: %w", err)
	}

	return &entry, nil
}

// Put inserts or overwrites the entry for its signature.
func (c *resultCache) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if entry == nil || entry.QueryHash == "" {
		return domain.ErrInvalidInput
	}

	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}

	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastAccessed.IsZero() {
		entry.LastAccessed = now
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO search_cache (query_hash, query_text, mode, results, hit_count, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			query_text = excluded.query_text,
			mode = excluded.mode,
			results = excluded.results,
			hit_count = excluded.hit_count,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed
	`, entry.QueryHash, entry.QueryText, string(entry.Mode), string(resultsJSON),
		entry.HitCount, entry.CreatedAt, entry.LastAccessed)

	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// Evict removes entries older than maxAge, then keeps only the
// maxEntries best entries by (hit count desc, last access desc).
func (c *resultCache) Evict(ctx context.Context, maxAge time.Duration, maxEntries int) (int, error) {
	removed := 0

	if maxAge > 0 {
		cutoff := time.Now().UTC().Add(-maxAge)
		res, err := c.store.db.ExecContext(ctx, "DELETE FROM search_cache WHERE created_at < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("evicting aged entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking aged eviction: %w", err)
		}
		removed += int(affected)
	}

	if maxEntries > 0 {
		res, err := c.store.db.ExecContext(ctx, `
			DELETE FROM search_cache WHERE query_hash NOT IN (
				SELECT query_hash FROM search_cache
				ORDER BY hit_count DESC, last_accessed DESC
				LIMIT ?
			)
		`, maxEntries)
		if err != nil {
			return 0, fmt.Errorf("evicting excess entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking excess eviction: %w", err)
		}
		removed += int(affected)
	}

	return removed, nil
}

// Clear removes all entries.
func (c *resultCache) Clear(ctx context.Context) error {
	_, err := c.store.db.ExecContext(ctx, "DELETE FROM search_cache")
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// documentColumns is the shared SELECT prefix for full document scans.
const documentColumns = `
	SELECT id, file_name, file_path, file_size, file_type, content_hash,
	       title, content, summary, keywords, status,
	       upload_token, session_id, user_id,
	       created_at, updated_at, processed_at`

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var processedAt sql.NullString

	if err := row.Scan(&doc.ID, &doc.FileName, &doc.FilePath, &doc.FileSize,
		&doc.FileType, &doc.ContentHash, &doc.Title, &doc.Content, &doc.Summary,
		&doc.Keywords, &status,
		&doc.Attribution.UploadToken, &doc.Attribution.SessionID, &doc.Attribution.UserID,
		&doc.CreatedAt, &doc.UpdatedAt, &processedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.ProcessedAt = parseNullableTime(processedAt)

	return &doc, nil
}

// filterColumn maps a filter field to its documents column.
func filterColumn(field domain.FilterField) (string, error) {
	switch field {
	case domain.FilterUploadToken:
		return "d.upload_token", nil
	case domain.FilterSessionID:
		return "d.session_id", nil
	case domain.FilterUserID:
		return "d.user_id", nil
	case domain.FilterDocumentID:
		return "d.id", nil
	}
	return "", fmt.Errorf("%w: unknown filter field %q", domain.ErrInvalidInput, field)
}

// buildFilterClause renders an attribution filter as AND-ed SQL
// conditions against the joined documents table.
func buildFilterClause(filter *domain.Filter) (string, []any, error) {
	if filter == nil || len(filter.Conditions) == 0 {
		return "", nil, nil
	}

	var sb strings.Builder
	var args []any
	for _, cond := range filter.Conditions {
		column, err := filterColumn(cond.Field)
		if err != nil {
			return "", nil, err
		}
		if len(cond.Values) == 0 {
			return "", nil, fmt.Errorf("%w: filter condition on %q has no values", domain.ErrInvalidInput, cond.Field)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cond.Values)), ", ")
		fmt.Fprintf(&sb, " AND %s IN (%s)", column, placeholders)
		for _, v := range cond.Values {
			args = append(args, v)
		}
	}

	return sb.String(), args, nil
}

// buildMatchQuery turns free text into an FTS5 MATCH expression. Each
// term is quoted so user input cannot inject FTS syntax, then the
// terms are AND-ed.
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " AND ")
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
