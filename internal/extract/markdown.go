package extract

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

// Ensure Markdown implements the interface.
var _ driven.TextExtractor = (*Markdown)(nil)

// Markdown handles Markdown files, stripping formatting so the stored
// text reads as prose.
type Markdown struct{}

// NewMarkdown creates a new Markdown extractor.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Extensions returns the extensions this extractor handles.
func (e *Markdown) Extensions() []string {
	return []string{"md", "markdown"}
}

// Extract reads the file, takes the first H1 heading as the title
// (falling back to the file name) and strips markdown formatting.
func (e *Markdown) Extract(_ context.Context, path string) (*driven.ExtractResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	raw := string(data)
	title := headingTitle(raw)
	if title == "" {
		title = titleFromName(path)
	}

	return &driven.ExtractResult{
		Title: title,
		Text:  stripMarkdown(raw),
	}, nil
}

// headingTitle returns the first H1 heading, or empty.
func headingTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

var (
	reCodeBlock    = regexp.MustCompile("(?s)```[^`]*```")
	reInlineCode   = regexp.MustCompile("`[^`]+`")
	reImages       = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	reLinks        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reHeadings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reBlockquote   = regexp.MustCompile(`(?m)^>\s*`)
	reHorizRule    = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	reListMarkers  = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumberedList = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reMultiNewline = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown removes common markdown formatting for plain text content.
// This is a simplified implementation that handles common cases.
func stripMarkdown(content string) string {
	content = reCodeBlock.ReplaceAllString(content, "")
	content = reInlineCode.ReplaceAllString(content, "")
	content = reImages.ReplaceAllString(content, "")
	content = reLinks.ReplaceAllString(content, "$1")
	content = reHeadings.ReplaceAllString(content, "")

	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")
	content = strings.ReplaceAll(content, "*", "")
	content = strings.ReplaceAll(content, "_", " ")

	content = reBlockquote.ReplaceAllString(content, "")
	content = reHorizRule.ReplaceAllString(content, "")
	content = reListMarkers.ReplaceAllString(content, "")
	content = reNumberedList.ReplaceAllString(content, "")
	content = reMultiNewline.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
