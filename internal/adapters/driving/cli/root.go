// Package cli implements the quarry command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quarry/internal/adapters/driven/config/file"
	"github.com/custodia-labs/quarry/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/quarry/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/quarry/internal/adapters/driven/index/flat"
	"github.com/custodia-labs/quarry/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/quarry/internal/chunker"
	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/core/ports/driving"
	"github.com/custodia-labs/quarry/internal/core/services"
	"github.com/custodia-labs/quarry/internal/extract"
	"github.com/custodia-labs/quarry/internal/logger"
)

// version is set via -ldflags at build time.
var version = "dev"

// Persistent flags.
var (
	verbose   bool
	dataDir   string
	configDir string
)

// Shared services, wired by initServices.
var (
	configStore     driven.ConfigStore
	store           *sqlite.Store
	vectorIndex     driven.VectorIndex
	embedder        driven.EmbeddingService
	ingestService   driving.IngestService
	queryService    driving.QueryService
	maintenance     *services.Scheduler
	schedulerConfig domain.SchedulerConfig
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Local hybrid search over your documents",
	Long: `Quarry ingests documents into a local store and answers queries by
fusing keyword (BM25) and semantic (vector) retrieval.

All data lives under ~/.quarry by default; no external services are
required unless an embedding provider is configured.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if skipsServices(cmd) || queryService != nil {
			return nil
		}
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.quarry/data)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default ~/.quarry)")
}

// Execute runs the root command and releases shared resources.
func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

// skipsServices reports whether a command runs without the service
// stack, so e.g. `quarry version` works on a broken data dir.
func skipsServices(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// initServices wires the full service stack: config, store, vector
// index, optional embedder, ingestion pipeline, query engine and
// maintenance scheduler.
func initServices() error {
	var err error

	configStore, err = file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err = sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	embedder = buildEmbedder(configStore)

	dims := configStore.GetInt("index.dimensions")
	if embedder != nil {
		dims = embedder.Dimensions()
	}
	if dims <= 0 {
		dims = ollama.DefaultDimensions
	}

	root, err := dataRoot()
	if err != nil {
		return err
	}

	vectorIndex, err = flat.New(dims, filepath.Join(root, "index", "vectors.bin"))
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	if err := vectorIndex.Load(context.Background()); err != nil {
		return fmt.Errorf("loading vector index: %w", err)
	}

	splitter := chunker.New(
		chunker.WithChunkSize(configStore.GetInt("chunking.size")),
		chunker.WithOverlap(configStore.GetInt("chunking.overlap")),
	)

	ingestService = services.NewIngestPipeline(
		store.DocumentStore(),
		vectorIndex,
		embedder,
		extract.DefaultRegistry(),
		splitter,
		services.IngestConfig{
			StorageDir:  filepath.Join(root, "files"),
			FallbackDir: filepath.Join(os.TempDir(), "quarry-files"),
			MaxFileSize: int64(configStore.GetInt("ingest.max_file_size")),
		},
	)

	queryService = services.NewQueryEngine(
		store.DocumentStore(),
		vectorIndex,
		embedder,
		store.ResultCache(),
		queryConfig(configStore),
	)

	schedulerConfig = domain.DefaultSchedulerConfig()
	maintenance = services.NewScheduler(
		schedulerConfig,
		domain.DefaultCacheConfig(),
		store.SchedulerStore(),
		store.ResultCache(),
		vectorIndex,
	)

	return nil
}

// buildEmbedder constructs the configured embedding provider, or nil
// for keyword-only operation. An unreachable provider degrades to nil
// with a warning instead of failing every command.
func buildEmbedder(cfg driven.ConfigStore) driven.EmbeddingService {
	var svc driven.EmbeddingService

	switch provider := cfg.GetString("embedding.provider"); provider {
	case "", "none":
		return nil

	case "ollama":
		svc = ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.GetString("embedding.base_url"),
			Model:      cfg.GetString("embedding.model"),
			Dimensions: cfg.GetInt("index.dimensions"),
		})

	case "openai":
		openaiSvc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:            cfg.GetString("embedding.api_key"),
			BaseURL:           cfg.GetString("embedding.base_url"),
			Model:             cfg.GetString("embedding.model"),
			RequestsPerMinute: cfg.GetInt("embedding.requests_per_minute"),
		})
		if err != nil {
			logger.Warn("OpenAI embedding unavailable, running keyword-only: %v", err)
			return nil
		}
		svc = openaiSvc

	default:
		logger.Warn("Unknown embedding provider %q, running keyword-only", provider)
		return nil
	}

	if err := svc.Ping(context.Background()); err != nil {
		logger.Warn("Embedding provider unreachable, running keyword-only: %v", err)
		svc.Close()
		return nil
	}
	return svc
}

// queryConfig reads fusion tuning from the config store, falling back
// to the built-in defaults key by key.
func queryConfig(cfg driven.ConfigStore) services.QueryConfig {
	out := services.DefaultQueryConfig()

	if topK := cfg.GetInt("query.top_k"); topK > 0 {
		out.DefaultTopK = topK
	}
	if w := cfg.GetFloat("query.vector_weight"); w > 0 {
		out.Fusion.VectorWeight = w
	}
	if w := cfg.GetFloat("query.keyword_weight"); w > 0 {
		out.Fusion.KeywordWeight = w
	}
	if k := cfg.GetInt("query.rrf_k"); k > 0 {
		out.Fusion.RRFK = k
	}
	return out
}

// dataRoot resolves the effective data directory.
func dataRoot() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".quarry", "data"), nil
}

// shutdown flushes and closes shared resources in dependency order.
func shutdown() {
	if vectorIndex != nil {
		if err := vectorIndex.Persist(context.Background()); err != nil {
			logger.Warn("Persisting vector index on shutdown: %v", err)
		}
		_ = vectorIndex.Close()
	}
	if embedder != nil {
		_ = embedder.Close()
	}
	if store != nil {
		_ = store.Close()
	}
}
