package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"documents", "doc"},
	Short:   "Manage ingested documents",
	Long:  `List, inspect, delete or reprocess ingested documents.`,
}

var (
	documentListStatus string
	documentListLimit  int
	documentListOffset int
)

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show document metadata and chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentStatusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show ingestion progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentStatus,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentReprocessCmd = &cobra.Command{
	Use:   "reprocess [doc-id]",
	Short: "Re-run the pipeline from the managed source file",
	Long: `Removes the document's chunks and vectors and re-ingests it from the
managed copy of the source file. A new document id is assigned.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentReprocess,
}

func init() {
	documentListCmd.Flags().StringVar(&documentListStatus, "status", "", "filter by status (pending|processing|processed|failed)")
	documentListCmd.Flags().IntVarP(&documentListLimit, "limit", "n", 20, "page size")
	documentListCmd.Flags().IntVar(&documentListOffset, "offset", 0, "page offset")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentStatusCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentReprocessCmd)
	rootCmd.AddCommand(documentCmd)
}

// parseDocID converts a CLI argument into a document id.
func parseDocID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	var status *domain.DocumentStatus
	if documentListStatus != "" {
		s := domain.DocumentStatus(documentListStatus)
		if !s.Valid() {
			return fmt.Errorf("invalid status %q", documentListStatus)
		}
		status = &s
	}

	page, err := ingestService.ListDocuments(context.Background(), status, documentListLimit, documentListOffset)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if len(page.Documents) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for i := range page.Documents {
		d := &page.Documents[i]
		title := d.Title
		if title == "" {
			title = d.FileName
		}
		cmd.Printf("  [%d] %s (%s, %d bytes, %s)\n", d.ID, title, d.FileType, d.FileSize, d.Status)
	}
	cmd.Printf("\nShowing %d of %d documents\n", len(page.Documents), page.Total)
	return nil
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	id, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	doc, chunks, err := ingestService.GetDocument(context.Background(), id)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	cmd.Printf("Document %d\n\n", doc.ID)
	cmd.Printf("  File:     %s (%s, %d bytes)\n", doc.FileName, doc.FileType, doc.FileSize)
	cmd.Printf("  Title:    %s\n", doc.Title)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Hash:     %s\n", doc.ContentHash)
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	if !doc.ProcessedAt.IsZero() {
		cmd.Printf("  Processed: %s\n", doc.ProcessedAt.Format("2006-01-02 15:04:05"))
	}
	if doc.Summary != "" {
		cmd.Printf("\n  Summary:  %s\n", doc.Summary)
	}
	if doc.Keywords != "" {
		cmd.Printf("  Keywords: %s\n", doc.Keywords)
	}

	cmd.Printf("\n  Chunks: %d\n", len(chunks))
	for i := range chunks {
		embedded := " "
		if len(chunks[i].Embedding) > 0 {
			embedded = "*"
		}
		cmd.Printf("    [%d]%s %d tokens\n", chunks[i].ChunkIndex, embedded, chunks[i].TokenCount)
	}
	return nil
}

func runDocumentStatus(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	id, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	status, err := ingestService.Status(context.Background(), id)
	if err != nil {
		return fmt.Errorf("loading status: %w", err)
	}

	cmd.Printf("Document %d: %s", status.DocumentID, status.Stage)
	if status.Running {
		cmd.Print(" (running)")
	}
	cmd.Println()
	if status.Error != "" {
		cmd.Printf("  Error: %s\n", status.Error)
	}
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	id, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	removed, err := ingestService.DeleteDocument(context.Background(), id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	cmd.Printf("Deleted document %d (%d chunks).\n", id, removed)
	return nil
}

func runDocumentReprocess(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	id, err := parseDocID(args[0])
	if err != nil {
		return err
	}

	freshID, err := ingestService.Reprocess(context.Background(), id)
	if err != nil {
		return fmt.Errorf("reprocessing document: %w", err)
	}

	cmd.Printf("Reprocessing document %d as %d...\n", id, freshID)
	ingestService.Wait()

	status, err := ingestService.Status(context.Background(), freshID)
	if err != nil {
		return fmt.Errorf("loading status: %w", err)
	}
	cmd.Printf("Document %d: %s\n", freshID, status.Stage)
	return nil
}
