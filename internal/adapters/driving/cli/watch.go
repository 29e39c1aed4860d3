package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/logger"
)

// settleDelay is how long a file must stay quiet after its last write
// event before it is submitted, so half-written files are not ingested.
const settleDelay = 2 * time.Second

var (
	watchToken   string
	watchSession string
	watchUser    string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and ingest new files",
	Long: `Watches a directory and submits files for ingestion as they appear.
Content-hash deduplication makes repeated events for the same file
harmless. The maintenance scheduler runs for the lifetime of the watch.

Hidden files and unsupported formats are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchToken, "token", "", "upload token to attribute documents to")
	watchCmd.Flags().StringVar(&watchSession, "session", "", "session id to attribute documents to")
	watchCmd.Flags().StringVar(&watchUser, "user", "", "user id to attribute documents to")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("statting watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The watch runs indefinitely, so background maintenance applies.
	if schedulerConfig.Enabled && maintenance != nil {
		go func() {
			if err := maintenance.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Scheduler stopped: %v", err)
			}
		}()
		defer maintenance.Stop() //nolint:errcheck
	}

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", dir)

	attrib := domain.Attribution{
		UploadToken: watchToken,
		SessionID:   watchSession,
		UserID:      watchUser,
	}

	// pending maps paths to their last write event; a file is submitted
	// once it has been quiet for settleDelay.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cmd.Println("\nStopping watch...")
			ingestService.Wait()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				delete(pending, event.Name)
				continue
			}
			if skipWatchedFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(pending, path)

				id, err := ingestService.Submit(ctx, path, "", attrib)
				if err != nil {
					logger.Warn("Submitting %s: %v", path, err)
					continue
				}
				cmd.Printf("  %s -> document %d\n", path, id)
			}
		}
	}
}

// skipWatchedFile filters out directories and hidden files.
func skipWatchedFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	info, err := os.Stat(path)
	return err != nil || info.IsDir()
}
