package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/quarry/internal/chunker"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/logger"
)

// Ensure IngestPipeline implements the interface.
var _ driving.IngestService = (*IngestPipeline)(nil)

// DefaultMaxFileSize caps submitted files at 50 MiB.
const DefaultMaxFileSize = 50 << 20

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// StorageDir is where managed copies of source files live.
	StorageDir string

	// FallbackDir is tried once when a copy into StorageDir fails.
	FallbackDir string

	// MaxFileSize rejects larger submissions. Zero means the default.
	MaxFileSize int64
}

// IngestPipeline drives documents from raw files to indexed chunks.
//
// Submit is fire-and-forget: it creates the document row and the
// managed file copy synchronously, then runs the rest of the pipeline
// in a goroutine. Failures flip the document to failed; partial chunk
// rows from a mid-pipeline crash are cleaned up by Reprocess.
type IngestPipeline struct {
	docs       driven.DocumentStore
	index      driven.VectorIndex
	embedder   driven.EmbeddingService // optional
	extractors driven.ExtractorRegistry
	splitter   *chunker.Splitter
	cfg        IngestConfig

	mu   sync.Mutex
	jobs map[int64]*driving.IngestStatus
	wg   sync.WaitGroup
}

// NewIngestPipeline creates the pipeline. embedder may be nil, in
// which case documents are ingested for keyword search only.
func NewIngestPipeline(
	docs driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	extractors driven.ExtractorRegistry,
	splitter *chunker.Splitter,
	cfg IngestConfig,
) *IngestPipeline {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	return &IngestPipeline{
		docs:       docs,
		index:      index,
		embedder:   embedder,
		extractors: extractors,
		splitter:   splitter,
		cfg:        cfg,
		jobs:       make(map[int64]*driving.IngestStatus),
	}
}

// Submit registers a file for ingestion and starts the pipeline.
func (p *IngestPipeline) Submit(
	ctx context.Context,
	path, originalName string,
	attrib domain.Attribution,
) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("statting source file: %w", err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return 0, fmt.Errorf("%w: %d bytes (limit %d)", domain.ErrFileTooLarge, info.Size(), p.cfg.MaxFileSize)
	}

	if originalName == "" {
		originalName = filepath.Base(path)
	}

	// Reject unsupported formats before any row exists.
	if _, err := p.extractors.ForFile(originalName); err != nil {
		return 0, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return 0, fmt.Errorf("hashing source file: %w", err)
	}

	// Byte-identical resubmission of a processed file is a no-op.
	if existing, err := p.docs.FindByContentHash(ctx, hash); err == nil {
		if existing.Status == domain.StatusProcessed {
			logger.Debug("Duplicate upload of %s matches document %d", originalName, existing.ID)
			return existing.ID, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("checking for duplicate: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), ".")
	managedPath, err := p.copyToStorage(path, ext)
	if err != nil {
		return 0, err
	}

	doc := &domain.Document{
		FileName:    originalName,
		FilePath:    managedPath,
		FileSize:    info.Size(),
		FileType:    ext,
		ContentHash: hash,
		Status:      domain.StatusPending,
		Attribution: attrib,
	}
	if err := p.docs.CreateDocument(ctx, doc); err != nil {
		os.Remove(managedPath)
		return 0, fmt.Errorf("creating document: %w", err)
	}

	logger.Info("Submitted %s as document %d", originalName, doc.ID)
	p.startJob(doc.ID)
	return doc.ID, nil
}

// startJob tracks the document and runs the pipeline in the background.
func (p *IngestPipeline) startJob(documentID int64) {
	p.mu.Lock()
	p.jobs[documentID] = &driving.IngestStatus{
		DocumentID: documentID,
		Stage:      "pending",
		Running:    true,
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(documentID)
	}()
}

// run executes the pipeline stages for one document. It uses a
// background context: submission has already returned and the job must
// not die with the caller's request.
func (p *IngestPipeline) run(documentID int64) {
	ctx := context.Background()

	if err := p.process(ctx, documentID); err != nil {
		logger.Error("Ingestion of document %d failed: %v", documentID, err)
		if statusErr := p.docs.UpdateStatus(ctx, documentID, domain.StatusFailed); statusErr != nil {
			logger.Error("Marking document %d failed: %v", documentID, statusErr)
		}
		p.finishJob(documentID, err)
		return
	}

	p.finishJob(documentID, nil)
}

// process runs extract -> chunk -> embed -> store -> index.
func (p *IngestPipeline) process(ctx context.Context, documentID int64) error {
	doc, err := p.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	if err := p.docs.UpdateStatus(ctx, documentID, domain.StatusProcessing); err != nil {
		return fmt.Errorf("marking processing: %w", err)
	}

	p.setStage(documentID, "extracting")
	extractor, err := p.extractors.ForFile(doc.FileName)
	if err != nil {
		return err
	}
	extracted, err := extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return fmt.Errorf("%w: no text extracted from %s", domain.ErrInvalidInput, doc.FileName)
	}

	summary := deriveSummary(extracted.Text)
	keywords := deriveKeywords(extracted.Text)
	if err := p.docs.UpdateContent(ctx, documentID, extracted.Title, extracted.Text, summary, keywords); err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	p.setStage(documentID, "chunking")
	chunks := p.splitter.Split(documentID, extracted.Text)
	logger.Debug("Document %d split into %d chunks", documentID, len(chunks))

	if p.embedder != nil {
		p.setStage(documentID, "embedding")
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].Content
		}
		embeddings, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
		}
		if len(embeddings) != len(chunks) {
			return fmt.Errorf("embedding count mismatch: %d for %d chunks", len(embeddings), len(chunks))
		}
		for i := range chunks {
			chunks[i].Embedding = embeddings[i]
		}
	}

	p.setStage(documentID, "storing")
	if err := p.docs.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("saving chunks: %w", err)
	}

	if p.embedder != nil && p.index != nil {
		p.setStage(documentID, "indexing")
		keys := make([]string, len(chunks))
		vectors := make([][]float32, len(chunks))
		meta := make([]domain.ChunkMetadata, len(chunks))
		for i, chunk := range chunks {
			keys[i] = chunk.Key()
			vectors[i] = chunk.Embedding
			meta[i] = domain.ChunkMetadata{
				DocumentID:  chunk.DocumentID,
				ChunkIndex:  chunk.ChunkIndex,
				Attribution: doc.Attribution,
			}
		}
		if err := p.index.Add(ctx, keys, vectors, meta); err != nil {
			return fmt.Errorf("indexing vectors: %w", err)
		}
		if err := p.index.Persist(ctx); err != nil {
			logger.Warn("Persisting vector index after document %d: %v", documentID, err)
		}
	}

	if err := p.docs.UpdateStatus(ctx, documentID, domain.StatusProcessed); err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}

	logger.Info("Document %d processed: %d chunks", documentID, len(chunks))
	return nil
}

// Status reports ingestion progress for a document.
func (p *IngestPipeline) Status(ctx context.Context, documentID int64) (*driving.IngestStatus, error) {
	p.mu.Lock()
	if status, ok := p.jobs[documentID]; ok {
		copied := *status
		p.mu.Unlock()
		return &copied, nil
	}
	p.mu.Unlock()

	// Not tracked in this process; derive from the stored state.
	doc, err := p.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return &driving.IngestStatus{
		DocumentID: documentID,
		Stage:      string(doc.Status),
		Running:    false,
	}, nil
}

// ListDocuments returns a page of document summaries.
func (p *IngestPipeline) ListDocuments(
	ctx context.Context,
	status *domain.DocumentStatus,
	limit, offset int,
) (*domain.DocumentPage, error) {
	return p.docs.ListDocuments(ctx, status, limit, offset)
}

// GetDocument returns a document with its ordered chunks.
func (p *IngestPipeline) GetDocument(ctx context.Context, id int64) (*domain.Document, []domain.Chunk, error) {
	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	chunks, err := p.docs.GetChunks(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading chunks: %w", err)
	}

	return doc, chunks, nil
}

// DeleteDocument removes a document and its chunks. The relational
// delete is authoritative; vector removal is best-effort and never
// rolls the delete back.
func (p *IngestPipeline) DeleteDocument(ctx context.Context, id int64) (int, error) {
	chunks, err := p.docs.GetChunks(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading chunks: %w", err)
	}

	removed, err := p.docs.DeleteDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	p.removeVectors(ctx, chunks)

	p.mu.Lock()
	delete(p.jobs, id)
	p.mu.Unlock()

	logger.Info("Deleted document %d (%d chunks)", id, removed)
	return removed, nil
}

// Reprocess re-runs the pipeline for a document from its managed
// source file. The old row, chunks and vectors are removed and a new
// document id is assigned.
func (p *IngestPipeline) Reprocess(ctx context.Context, id int64) (int64, error) {
	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	if _, err := os.Stat(doc.FilePath); err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrSourceFileMissing, doc.FilePath)
	}

	chunks, err := p.docs.GetChunks(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading chunks: %w", err)
	}

	if _, err := p.docs.DeleteDocument(ctx, id); err != nil {
		return 0, fmt.Errorf("removing old document: %w", err)
	}
	p.removeVectors(ctx, chunks)

	fresh := &domain.Document{
		FileName:    doc.FileName,
		FilePath:    doc.FilePath,
		FileSize:    doc.FileSize,
		FileType:    doc.FileType,
		ContentHash: doc.ContentHash,
		Status:      domain.StatusPending,
		Attribution: doc.Attribution,
	}
	if err := p.docs.CreateDocument(ctx, fresh); err != nil {
		return 0, fmt.Errorf("creating document: %w", err)
	}

	logger.Info("Reprocessing document %d as %d", id, fresh.ID)
	p.startJob(fresh.ID)
	return fresh.ID, nil
}

// Wait blocks until all in-flight ingestion jobs complete.
func (p *IngestPipeline) Wait() {
	p.wg.Wait()
}

// removeVectors drops the chunks' vectors from the index and persists,
// logging failures instead of returning them.
func (p *IngestPipeline) removeVectors(ctx context.Context, chunks []domain.Chunk) {
	if p.index == nil || len(chunks) == 0 {
		return
	}

	keys := make([]string, len(chunks))
	for i, chunk := range chunks {
		keys[i] = chunk.Key()
	}

	if err := p.index.Remove(ctx, keys); err != nil {
		logger.Warn("Removing %d vectors: %v", len(keys), err)
		return
	}
	if err := p.index.Persist(ctx); err != nil {
		logger.Warn("Persisting vector index after removal: %v", err)
	}
}

// setStage updates the tracked stage for a running job.
func (p *IngestPipeline) setStage(documentID int64, stage string) {
	p.mu.Lock()
	if status, ok := p.jobs[documentID]; ok {
		status.Stage = stage
	}
	p.mu.Unlock()
	logger.Debug("Document %d: %s", documentID, stage)
}

// finishJob marks a tracked job as done or failed.
func (p *IngestPipeline) finishJob(documentID int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.jobs[documentID]
	if !ok {
		return
	}
	status.Running = false
	if err != nil {
		status.Stage = "failed"
		status.Error = err.Error()
	} else {
		status.Stage = "done"
	}
}

// copyToStorage copies the source file into managed storage under a
// fresh name, retrying once against the fallback directory when the
// primary write fails.
func (p *IngestPipeline) copyToStorage(src, ext string) (string, error) {
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}

	path, err := copyFile(src, p.cfg.StorageDir, name)
	if err == nil {
		return path, nil
	}

	if p.cfg.FallbackDir == "" || p.cfg.FallbackDir == p.cfg.StorageDir {
		return "", fmt.Errorf("copying to storage: %w", err)
	}

	logger.Warn("Copy to %s failed (%v), retrying in %s", p.cfg.StorageDir, err, p.cfg.FallbackDir)
	path, fallbackErr := copyFile(src, p.cfg.FallbackDir, name)
	if fallbackErr != nil {
		return "", fmt.Errorf("copying to fallback storage: %w", fallbackErr)
	}
	return path, nil
}

// copyFile copies src into dir/name, creating dir as needed.
func copyFile(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}

	return dst, nil
}

// hashFile returns the hex SHA-256 of the file's bytes.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// summaryLength caps the derived abstract.
const summaryLength = 280

// deriveSummary takes the leading text up to summaryLength runes,
// cut back to the last word boundary.
func deriveSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= summaryLength {
		return text
	}

	cut := string(runes[:summaryLength])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// keywordCount is how many derived keywords are kept.
const keywordCount = 8

// stopwords excluded from keyword derivation.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "what": true, "when": true, "which": true,
	"their": true, "there": true, "these": true, "then": true, "them": true,
	"were": true, "been": true, "into": true, "more": true, "your": true,
	"about": true, "would": true, "could": true, "should": true, "other": true,
}

// deriveKeywords picks the most frequent non-stopword terms, longest
// streak of ties broken alphabetically for determinism.
func deriveKeywords(text string) string {
	counts := make(map[string]int)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, ".,;:!?\"'()[]{}<>")
		if len(word) < 4 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > keywordCount {
		words = words[:keywordCount]
	}
	return strings.Join(words, " ")
}
