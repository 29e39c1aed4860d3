package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

// Document lifecycle states. Transitions are strictly
// pending -> processing -> {processed | failed}.
const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is a recognised lifecycle state.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Attribution carries opaque caller-supplied tags through ingestion.
// They exist purely for downstream filtering; the engine attaches
// no authorisation semantics to them.
type Attribution struct {
	// UploadToken identifies the upload that produced the document.
	UploadToken string

	// SessionID identifies the uploader's session.
	SessionID string

	// UserID identifies the uploader.
	UserID string
}

// Document represents an ingested document with metadata.
// Rows are owned by the document store and mutated only by the
// ingestion pipeline and by explicit delete/reprocess operations.
type Document struct {
	// ID is the unique identifier, assigned by the store on creation.
	ID int64

	// FileName is the original name supplied at upload time.
	FileName string

	// FilePath is the location of the managed copy of the source file.
	FilePath string

	// FileSize is the source file size in bytes.
	FileSize int64

	// FileType is the lowercased file extension without the dot.
	FileType string

	// ContentHash is the hex SHA-256 of the source bytes, used for dedup.
	ContentHash string

	// Title is the extracted human-readable title.
	Title string

	// Content is the full extracted text before chunking.
	Content string

	// Summary is a short derived abstract of the content.
	Summary string

	// Keywords is a space-separated list of derived keywords.
	Keywords string

	// Status is the ingestion lifecycle state.
	Status DocumentStatus

	// Attribution holds the opaque upload/session/user tags.
	Attribution Attribution

	// CreatedAt is when the document was first submitted.
	CreatedAt time.Time

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time

	// ProcessedAt is when ingestion completed. Zero until processed.
	ProcessedAt time.Time
}

// Chunk is the unit of embedding and retrieval.
// Each chunk belongs to exactly one document; ChunkIndex is 0-based
// and unique within the document.
type Chunk struct {
	// ID is the store-assigned row identifier.
	ID int64

	// DocumentID links to the parent Document.
	DocumentID int64

	// ChunkIndex is the ordinal position within the document.
	ChunkIndex int

	// Content is the text content of this chunk.
	Content string

	// TokenCount is the approximate token count of Content.
	TokenCount int

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// Key returns the composite identity exposed to the vector index.
func (c Chunk) Key() string {
	return ChunkKey(c.DocumentID, c.ChunkIndex)
}

// ChunkKey builds the composite chunk identity "{document_id}_{chunk_index}".
func ChunkKey(documentID int64, chunkIndex int) string {
	return fmt.Sprintf("%d_%d", documentID, chunkIndex)
}

// ParseChunkKey splits a composite chunk key into document id and chunk index.
func ParseChunkKey(key string) (int64, int, error) {
	sep := strings.LastIndex(key, "_")
	if sep <= 0 || sep == len(key)-1 {
		return 0, 0, fmt.Errorf("%w: malformed chunk key %q", ErrInvalidInput, key)
	}

	docID, err := strconv.ParseInt(key[:sep], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed chunk key %q", ErrInvalidInput, key)
	}

	idx, err := strconv.Atoi(key[sep+1:])
	if err != nil || idx < 0 {
		return 0, 0, fmt.Errorf("%w: malformed chunk key %q", ErrInvalidInput, key)
	}

	return docID, idx, nil
}

// ChunkMetadata is the slice of chunk attributes the vector index keeps
// in its side cache for post-filtering without a relational round trip.
type ChunkMetadata struct {
	// DocumentID links to the parent Document.
	DocumentID int64

	// ChunkIndex is the ordinal position within the document.
	ChunkIndex int

	// Attribution holds the parent document's opaque tags.
	Attribution Attribution
}

// DocumentSummary is the listing view of a document, without content.
type DocumentSummary struct {
	ID          int64
	FileName    string
	FileType    string
	FileSize    int64
	Title       string
	Status      DocumentStatus
	CreatedAt   time.Time
	ProcessedAt time.Time
}

// DocumentPage is one page of a document listing plus the total count
// matching the filter.
type DocumentPage struct {
	Documents []DocumentSummary
	Total     int
}

// StoreStats reports document store sizes for observability.
type StoreStats struct {
	TotalDocuments int
	ByStatus       map[DocumentStatus]int
	TotalChunks    int
	CacheEntries   int
}
