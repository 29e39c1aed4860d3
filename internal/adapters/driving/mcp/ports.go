package mcp

import (
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers search queries.
	Query driving.QueryService

	// Ingest exposes document listing and inspection.
	Ingest driving.IngestService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	// Ingest is optional; document resources degrade gracefully.
	return nil
}
