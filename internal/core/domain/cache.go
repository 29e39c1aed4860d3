package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CacheEntry is one memoised query result. Entries are transient and
// rebuildable from the stores at any time; the cache is never a source
// of truth.
type CacheEntry struct {
	// QueryHash is the signature the entry is keyed by.
	QueryHash string

	// QueryText is the normalised query text, kept for inspection.
	QueryText string

	// Mode is the search mode the results were computed with.
	Mode SearchMode

	// Results is the fused, hydrated result list.
	Results []QueryResult

	// HitCount is the number of cache hits since creation.
	HitCount int

	// CreatedAt is when the entry was inserted.
	CreatedAt time.Time

	// LastAccessed is bumped on every hit.
	LastAccessed time.Time
}

// NormaliseQuery lowercases the query and collapses runs of whitespace
// so trivially different spellings share a cache entry.
func NormaliseQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QuerySignature hashes the full identity of a query: normalised text,
// mode, result budget and attribution filter. Queries that differ in
// any of these must not share a cache entry.
func QuerySignature(query string, mode SearchMode, topK int, filter *Filter) string {
	canonical := fmt.Sprintf("%s|%s|%d|%s", NormaliseQuery(query), mode, topK, filter.Canonical())
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
