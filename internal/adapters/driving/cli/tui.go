package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/adapters/driving/tui"
	"github.com/custodia-labs/quarry/internal/logger"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the interactive terminal user interface for Quarry.

The TUI provides a visual interface for searching your ingested
documents with keyboard navigation.

Controls:
  Enter  - Search
  Tab    - Cycle search mode (hybrid/keyword/vector)
  ↑/↓    - Navigate results
  Esc    - Quit`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	// Panic recovery so a rendering bug leaves a stack trace, not a
	// garbled terminal.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	// The TUI is long-running, so background maintenance applies.
	if schedulerConfig.Enabled && maintenance != nil {
		schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
		defer schedulerCancel()

		go func() {
			if err := maintenance.Start(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Scheduler stopped: %v", err)
			}
		}()
		defer maintenance.Stop() //nolint:errcheck
	}

	app, err := tui.NewApp(&tui.Ports{
		Query:  queryService,
		Ingest: ingestService,
	})
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}
	app.WithContext(cmd.Context())

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
