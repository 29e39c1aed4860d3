package driven

import "context"

// ExtractResult is the output of text extraction.
type ExtractResult struct {
	// Title is the extracted human-readable title.
	Title string

	// Text is the full plain-text content.
	Text string
}

// TextExtractor turns a source file into plain text.
// Each extractor handles a fixed set of file extensions.
type TextExtractor interface {
	// Extensions returns the lowercased extensions (without dot) this
	// extractor handles.
	Extensions() []string

	// Extract reads the file at path and returns its title and text.
	Extract(ctx context.Context, path string) (*ExtractResult, error)
}

// ExtractorRegistry selects an extractor for a file name.
type ExtractorRegistry interface {
	// ForFile returns the extractor for the file's extension, or
	// domain.ErrUnsupportedType when none is registered.
	ForFile(name string) (TextExtractor, error)
}
