package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

var (
	queryMode    string
	queryTopK    int
	queryJSON    bool
	queryToken   string
	querySession string
	queryUser    string
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search ingested documents",
	Long: `Runs a hybrid search over ingested documents, fusing keyword (BM25)
and semantic (vector) retrieval with Reciprocal Rank Fusion.

Use --mode to restrict retrieval to a single path. Attribution flags
restrict results to documents ingested with matching tags.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "hybrid", "search mode (hybrid|keyword|vector)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "n", 0, "maximum number of results")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().StringVar(&queryToken, "token", "", "restrict to documents with this upload token")
	queryCmd.Flags().StringVar(&querySession, "session", "", "restrict to documents with this session id")
	queryCmd.Flags().StringVar(&queryUser, "user", "", "restrict to documents with this user id")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	opts := domain.QueryOptions{
		TopK: queryTopK,
		Mode: domain.SearchMode(queryMode),
		Filter: domain.NewAttributionFilter(domain.Attribution{
			UploadToken: queryToken,
			SessionID:   querySession,
			UserID:      queryUser,
		}),
	}

	results, err := queryService.Query(context.Background(), args[0], opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return outputQueryJSON(cmd, results)
	}
	return outputQueryTable(cmd, results)
}

func outputQueryJSON(cmd *cobra.Command, results []domain.QueryResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryTable(cmd *cobra.Command, results []domain.QueryResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		title := r.Title
		if title == "" {
			title = r.FileName
		}

		cmd.Printf("  [%d] %s (%.4f)\n", i+1, title, r.Score)
		cmd.Printf("      Document %d, chunk %d\n", r.DocumentID, r.ChunkIndex)
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		cmd.Println()
	}
	return nil
}
