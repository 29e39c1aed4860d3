// Package extract provides text extractors for supported file formats.
// Extractors turn a source file into a title and plain text; chunking
// and embedding happen downstream in the ingestion pipeline.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps file extensions to extractors.
type Registry struct {
	byExtension map[string]driven.TextExtractor
}

// NewRegistry creates a registry with the given extractors.
func NewRegistry(extractors ...driven.TextExtractor) *Registry {
	r := &Registry{byExtension: make(map[string]driven.TextExtractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExtension[ext] = e
		}
	}
	return r
}

// DefaultRegistry returns a registry with all built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPlaintext(), NewMarkdown())
}

// ForFile returns the extractor for the file's extension.
func (r *Registry) ForFile(name string) (driven.TextExtractor, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	e, ok := r.byExtension[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for %q", domain.ErrUnsupportedType, ext)
	}
	return e, nil
}

// titleFromName derives a human-readable title from a file name:
// extension stripped, separators replaced with spaces.
func titleFromName(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return base
}
