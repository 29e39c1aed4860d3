package tui

import (
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces the TUI needs.
type Ports struct {
	// Query answers search queries.
	Query driving.QueryService

	// Ingest exposes document inspection. Optional; the result detail
	// line degrades to chunk identity only when nil.
	Ingest driving.IngestService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
