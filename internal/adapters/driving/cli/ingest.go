package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var (
	ingestToken   string
	ingestSession string
	ingestUser    string
	ingestNoWait  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest files into the search index",
	Long: `Submits one or more files for ingestion. Each file is copied into
managed storage, extracted, chunked, embedded (when an embedding
provider is configured) and indexed.

Resubmitting a byte-identical, already-processed file is a no-op and
returns the existing document id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestToken, "token", "", "upload token to attribute documents to")
	ingestCmd.Flags().StringVar(&ingestSession, "session", "", "session id to attribute documents to")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user id to attribute documents to")
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false, "return immediately instead of waiting for processing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	ctx := context.Background()
	attrib := domain.Attribution{
		UploadToken: ingestToken,
		SessionID:   ingestSession,
		UserID:      ingestUser,
	}

	ids := make([]int64, 0, len(args))
	var failed int
	for _, path := range args {
		id, err := ingestService.Submit(ctx, path, "", attrib)
		if err != nil {
			cmd.PrintErrf("  %s: %v\n", path, err)
			failed++
			continue
		}
		cmd.Printf("  %s -> document %d\n", path, id)
		ids = append(ids, id)
	}

	if !ingestNoWait {
		ingestService.Wait()
		for _, id := range ids {
			status, err := ingestService.Status(ctx, id)
			if err != nil {
				cmd.PrintErrf("  document %d: %v\n", id, err)
				continue
			}
			if status.Error != "" {
				cmd.Printf("  document %d: %s (%s)\n", id, status.Stage, status.Error)
				failed++
			} else {
				cmd.Printf("  document %d: %s\n", id, status.Stage)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}
