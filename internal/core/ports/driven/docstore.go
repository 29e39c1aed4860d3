package driven

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// DocumentStore persists documents and chunks and owns the full-text
// mirror kept synchronised with them. Backed by SQLite with FTS5.
//
// Every write that touches mirrored content (document title, body,
// keywords, chunk text) must apply the mirror change inside the same
// transaction as the base-row write.
type DocumentStore interface {
	// CreateDocument stores a new document and assigns its ID.
	// The document is created with whatever status it carries,
	// normally pending.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// UpdateStatus transitions a document's lifecycle state.
	// When status is processed, the processed timestamp is set.
	UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus) error

	// UpdateContent stores the extracted title, full text, summary and
	// keywords, updating the full-text mirror in the same transaction.
	UpdateContent(ctx context.Context, id int64, title, content, summary, keywords string) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)

	// FindByContentHash returns the most recent document with the given
	// content hash, or ErrNotFound.
	FindByContentHash(ctx context.Context, hash string) (*domain.Document, error)

	// ListDocuments returns a page of document summaries, newest first
	// (descending id), optionally filtered by status, plus the total
	// count matching the filter.
	ListDocuments(ctx context.Context, status *domain.DocumentStatus, limit, offset int) (*domain.DocumentPage, error)

	// SaveChunks stores all chunks for a document in one transaction,
	// mirroring each chunk's text into the full-text index.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks for a document in index order.
	GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error)

	// GetChunkByKey retrieves a chunk by its composite key.
	GetChunkByKey(ctx context.Context, key string) (*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks (and their
	// mirror rows) in one transaction, returning the number of chunk
	// rows removed. Returns ErrNotFound if the document does not exist.
	DeleteDocument(ctx context.Context, id int64) (int, error)

	// SearchChunks runs a keyword query against the chunk mirror and
	// returns ranked chunk keys with scores normalised to 0-1, best
	// first. The optional filter restricts by attribution tags.
	SearchChunks(ctx context.Context, query string, limit int, filter *domain.Filter) ([]domain.RankedChunk, error)

	// SearchDocuments runs a keyword query against the document mirror
	// (title, content, keywords) and returns ranked summaries.
	SearchDocuments(ctx context.Context, query string, limit int) ([]domain.DocumentSummary, error)

	// Stats reports store sizes for observability.
	Stats(ctx context.Context) (*domain.StoreStats, error)
}
