package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached query results",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	stats, err := queryService.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}

	cmd.Println("Store:")
	cmd.Printf("  Documents:     %d\n", stats.Store.TotalDocuments)
	for status, count := range stats.Store.ByStatus {
		cmd.Printf("    %-12s %d\n", status+":", count)
	}
	cmd.Printf("  Chunks:        %d\n", stats.Store.TotalChunks)
	cmd.Printf("  Cache entries: %d\n", stats.Store.CacheEntries)

	cmd.Println("\nVector index:")
	cmd.Printf("  Vectors:       %d\n", stats.Index.Vectors)
	cmd.Printf("  Dimensions:    %d\n", stats.Index.Dimensions)
	cmd.Printf("  Metadata:      %d\n", stats.Index.MetadataEntries)
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	if err := queryService.ClearCache(context.Background()); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	cmd.Println("Query cache cleared.")
	return nil
}
