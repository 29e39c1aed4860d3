// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - DocumentStore: Document/chunk persistence plus the full-text mirror.
//     BM25 keyword search is always available once documents are stored.
//   - VectorIndex: Dense vector storage and similarity search.
//   - TextExtractor / ExtractorRegistry: Turns source files into text.
//   - ResultCache: Memoised query results.
//   - ConfigStore: Application configuration.
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, the
//     vector path is disabled and queries run keyword-only.
//   - SchedulerStore: Maintenance task state. Without it, periodic
//     cache eviction and index persistence are disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
