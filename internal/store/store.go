// Package store defines the persistent metadata store contract shared by
// the cache's two backends (an embedded relational store and a remote
// key-value store), mirroring the interface segregation of
// original_source/src/content_cache/interfaces.py's IStorage Protocol.
package store

import "github.com/objectfs/extractcache/pkg/types"

// MetadataStore persists CacheEntry records, independent of backend.
// Implementations must be safe for concurrent use.
type MetadataStore interface {
	// Initialize prepares the backend (schema creation, connection setup).
	Initialize() error

	// Add inserts or updates the entry keyed by entry.FilePath. Backends
	// preserve an existing AccessCount when overwriting an entry for the
	// same path, per the reference implementation's upsert semantics.
	Add(entry *types.CacheEntry) error

	// Get returns the entry for path, or ok=false if absent.
	Get(path string) (entry *types.CacheEntry, ok bool, err error)

	// GetByHash returns every entry sharing contentHash, used to detect
	// duplicate content cached under distinct paths.
	GetByHash(contentHash string) ([]*types.CacheEntry, error)

	// GetAll returns every entry in the store.
	GetAll() ([]*types.CacheEntry, error)

	// Remove deletes the entry for path, reporting whether it existed.
	Remove(path string) (bool, error)

	// ClearOlderThan removes entries whose LastAccessed predates the cutoff
	// and returns the number removed.
	ClearOlderThan(cutoffDays int) (int64, error)

	// Statistics reports aggregate counts over the whole store.
	Statistics() (types.StorageStatistics, error)

	// Close releases any held resources (connections, file handles).
	Close() error
}
