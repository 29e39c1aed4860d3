package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Ensure Plaintext implements the interface.
var _ driven.TextExtractor = (*Plaintext)(nil)

// Plaintext handles plain text files. It is also the fallback for
// code and config formats that are already readable as-is.
type Plaintext struct{}

// NewPlaintext creates a new plain text extractor.
func NewPlaintext() *Plaintext {
	return &Plaintext{}
}

// Extensions returns the extensions this extractor handles.
func (e *Plaintext) Extensions() []string {
	return []string{
		"txt", "text", "log",
		"go", "py", "rs", "java", "c", "h", "cpp", "rb", "sh", "sql",
		"js", "jsx", "ts", "tsx", "css",
		"csv", "json", "yaml", "yml", "toml", "xml",
	}
}

// Extract reads the file and returns its content unchanged, with a
// title derived from the file name.
func (e *Plaintext) Extract(_ context.Context, path string) (*driven.ExtractResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return &driven.ExtractResult{
		Title: titleFromName(path),
		Text:  normaliseWhitespace(string(data)),
	}, nil
}

// normaliseWhitespace trims the text and converts Windows line endings.
func normaliseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
