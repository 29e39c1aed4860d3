package cli

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	results []domain.QueryResult
	stats   *driving.EngineStats
	err     error
	cleared bool
}

func (m *mockQueryService) Query(
	_ context.Context,
	_ string,
	_ domain.QueryOptions,
) ([]domain.QueryResult, error) {
	return m.results, m.err
}

func (m *mockQueryService) Stats(_ context.Context) (*driving.EngineStats, error) {
	if m.stats == nil {
		return &driving.EngineStats{}, m.err
	}
	return m.stats, m.err
}

func (m *mockQueryService) ClearCache(_ context.Context) error {
	m.cleared = true
	return m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	submitID  int64
	status    *driving.IngestStatus
	page      *domain.DocumentPage
	document  *domain.Document
	chunks    []domain.Chunk
	removed   int
	freshID   int64
	err       error
	deletedID int64
}

func (m *mockIngestService) Submit(
	_ context.Context,
	_, _ string,
	_ domain.Attribution,
) (int64, error) {
	return m.submitID, m.err
}

func (m *mockIngestService) Status(_ context.Context, id int64) (*driving.IngestStatus, error) {
	if m.status == nil {
		return &driving.IngestStatus{DocumentID: id, Stage: "done"}, m.err
	}
	return m.status, m.err
}

func (m *mockIngestService) ListDocuments(
	_ context.Context,
	_ *domain.DocumentStatus,
	_, _ int,
) (*domain.DocumentPage, error) {
	if m.page == nil {
		return &domain.DocumentPage{}, m.err
	}
	return m.page, m.err
}

func (m *mockIngestService) GetDocument(
	_ context.Context,
	_ int64,
) (*domain.Document, []domain.Chunk, error) {
	return m.document, m.chunks, m.err
}

func (m *mockIngestService) DeleteDocument(_ context.Context, id int64) (int, error) {
	m.deletedID = id
	return m.removed, m.err
}

func (m *mockIngestService) Reprocess(_ context.Context, _ int64) (int64, error) {
	return m.freshID, m.err
}

func (m *mockIngestService) Wait() {}

// setupTestServices wires mock services into the package-level slots
// and returns a cleanup restoring the previous state.
func setupTestServices(query *mockQueryService, ingest *mockIngestService) func() {
	prevQuery, prevIngest := queryService, ingestService
	queryService = query
	ingestService = ingest
	return func() {
		queryService, ingestService = prevQuery, prevIngest
	}
}
