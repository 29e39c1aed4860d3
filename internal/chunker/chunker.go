// Package chunker provides fixed-size text chunking with overlap.
package chunker

import (
	"github.com/custodia-labs/quarry/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Splitter splits document text into fixed-size chunks.
// Splitting is rune-based and fully deterministic: the same text always
// produces the same chunk count and boundaries.
type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// New creates a new splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}

	return s
}

// ChunkSize returns the configured chunk size.
func (s *Splitter) ChunkSize() int {
	return s.chunkSize
}

// Split cuts the text into chunks for the given document.
// Empty text produces no chunks.
func (s *Splitter) Split(documentID int64, text string) []domain.Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)
	step := s.chunkSize - s.overlap

	estimated := (total / step) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	index := 0
	for start := 0; start < total; start += step {
		end := start + s.chunkSize
		if end > total {
			end = total
		}

		content := string(runes[start:end])
		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			ChunkIndex: index,
			Content:    content,
			TokenCount: end - start,
		})
		index++

		if end == total {
			break
		}
	}

	return chunks
}
