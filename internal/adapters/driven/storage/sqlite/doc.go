// Package sqlite provides the SQLite-backed metadata store.
//
// A single database file holds documents, chunks, their FTS5 full-text
// mirrors, the query result cache and scheduler state. The Store type
// owns the connection; the narrower store interfaces are exposed as
// lightweight wrappers so services depend only on what they use.
//
// The FTS5 mirror tables are written explicitly by this package inside
// the same transaction as the base-row write. There are no triggers:
// keeping the mirror logic in Go makes the coupling visible and keeps
// the schema portable across SQLite builds.
package sqlite
