// Package types defines the data structures shared across the cache's
// tiers: the CacheEntry stored by the in-memory LRU and the persistent
// metadata store, the CachedContent returned to callers, and the
// statistics aggregates exposed through get_statistics.
package types
