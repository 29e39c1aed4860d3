package mcp

import (
	"context"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	results  []domain.QueryResult
	lastOpts domain.QueryOptions
	err      error
}

func (m *mockQueryService) Query(
	_ context.Context,
	_ string,
	opts domain.QueryOptions,
) ([]domain.QueryResult, error) {
	m.lastOpts = opts
	return m.results, m.err
}

func (m *mockQueryService) Stats(_ context.Context) (*driving.EngineStats, error) {
	return &driving.EngineStats{}, m.err
}

func (m *mockQueryService) ClearCache(_ context.Context) error {
	return m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	document *domain.Document
	chunks   []domain.Chunk
	page     *domain.DocumentPage
	status   *driving.IngestStatus
	err      error
}

func (m *mockIngestService) Submit(
	_ context.Context,
	_, _ string,
	_ domain.Attribution,
) (int64, error) {
	return 0, m.err
}

func (m *mockIngestService) Status(_ context.Context, _ int64) (*driving.IngestStatus, error) {
	return m.status, m.err
}

func (m *mockIngestService) ListDocuments(
	_ context.Context,
	_ *domain.DocumentStatus,
	_, _ int,
) (*domain.DocumentPage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.page == nil {
		return &domain.DocumentPage{}, nil
	}
	return m.page, nil
}

func (m *mockIngestService) GetDocument(
	_ context.Context,
	_ int64,
) (*domain.Document, []domain.Chunk, error) {
	return m.document, m.chunks, m.err
}

func (m *mockIngestService) DeleteDocument(_ context.Context, _ int64) (int, error) {
	return 0, m.err
}

func (m *mockIngestService) Reprocess(_ context.Context, _ int64) (int64, error) {
	return 0, m.err
}

func (m *mockIngestService) Wait() {}
