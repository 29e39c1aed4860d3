// Package tui provides the interactive terminal search interface,
// built on Bubbletea following the Elm architecture.
package tui

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("tui: query service is required")
