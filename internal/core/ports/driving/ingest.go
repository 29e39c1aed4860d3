package driving

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// IngestStatus reports the progress of a background ingestion job.
type IngestStatus struct {
	// DocumentID identifies the document being ingested.
	DocumentID int64

	// Stage names the pipeline step currently running.
	Stage string

	// Running is true while the job is in flight.
	Running bool

	// Error holds the failure message once the job has failed.
	Error string
}

// IngestService drives documents from raw files to indexed chunks.
//
// Submission is fire-and-forget: Submit returns as soon as the document
// row exists and the source file is copied into managed storage; the
// pipeline runs in the background and callers poll Status. There is no
// cancellation of an in-flight job.
type IngestService interface {
	// Submit registers a file for ingestion and starts the pipeline.
	// The caller guarantees the file exists at path. Returns the
	// document id. Submitting a byte-identical, already-processed file
	// returns the existing document id without re-ingesting.
	Submit(ctx context.Context, path, originalName string, attrib domain.Attribution) (int64, error)

	// Status reports ingestion progress for a document.
	Status(ctx context.Context, documentID int64) (*IngestStatus, error)

	// ListDocuments returns a page of document summaries, newest first,
	// optionally filtered by status.
	ListDocuments(ctx context.Context, status *domain.DocumentStatus, limit, offset int) (*domain.DocumentPage, error)

	// GetDocument returns a document with its ordered chunks.
	GetDocument(ctx context.Context, id int64) (*domain.Document, []domain.Chunk, error)

	// DeleteDocument removes a document, its chunks and (best-effort)
	// its vectors. Returns the number of chunk rows removed.
	DeleteDocument(ctx context.Context, id int64) (int, error)

	// Reprocess deletes a document's chunks, vectors and row, then
	// re-runs the pipeline from the managed source file with the same
	// attribution. Returns the new document id. Fails synchronously
	// with ErrNotFound or ErrSourceFileMissing.
	Reprocess(ctx context.Context, id int64) (int64, error)

	// Wait blocks until all in-flight ingestion jobs complete.
	// Used for graceful shutdown and one-shot commands.
	Wait()
}
