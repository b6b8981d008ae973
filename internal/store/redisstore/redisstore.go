// Package redisstore is the cache's remote key-value metadata backend,
// grounded on original_source/src/content_cache/redis_storage.py's
// RedisStorage: each entry is a Redis hash at "<prefix>:entry:<path>", and
// "<prefix>:stats" tracks aggregate counters via atomic HINCRBY so
// concurrent writers never race on read-modify-write statistics updates.
// Uses github.com/redis/go-redis/v9, already in the teacher's dependency
// stack for its own remote-backend support.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
	"github.com/objectfs/extractcache/pkg/types"
)

const component = "redisstore"

// Store is a go-redis-backed MetadataStore.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New returns a Store using client, namespacing all keys under keyPrefix.
func New(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "content_cache"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Initialize verifies connectivity to Redis.
func (s *Store) Initialize() error {
	ctx := context.Background()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return cerrors.Storage(component, "initialize", "failed to connect to redis", err)
	}
	return nil
}

func (s *Store) entryKey(path string) string {
	return s.keyPrefix + ":entry:" + path
}

func (s *Store) statsKey() string {
	return s.keyPrefix + ":stats"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func serializeEntry(entry *types.CacheEntry) map[string]interface{} {
	m := map[string]interface{}{
		"file_path":            entry.FilePath,
		"content_hash":         entry.ContentHash,
		"modification_time":    formatFloat(entry.ModificationTime),
		"file_size":            entry.FileSize,
		"content_blob_path":    entry.ContentBlobPath,
		"extraction_timestamp": formatTime(entry.ExtractionTimestamp),
		"access_count":         entry.AccessCount,
		"last_accessed":        formatTime(entry.LastAccessed),
	}
	if entry.ContentSet {
		m["content"] = entry.Content
	}
	return m
}

func deserializeEntry(path string, fields map[string]string) (*types.CacheEntry, error) {
	e := &types.CacheEntry{FilePath: path}
	e.ContentHash = fields["content_hash"]
	if v, err := strconv.ParseFloat(fields["modification_time"], 64); err == nil {
		e.ModificationTime = v
	}
	if v, err := strconv.ParseInt(fields["file_size"], 10, 64); err == nil {
		e.FileSize = v
	}
	if content, ok := fields["content"]; ok {
		e.Content = content
		e.ContentSet = true
	}
	e.ContentBlobPath = fields["content_blob_path"]
	e.ExtractionTimestamp = parseTime(fields["extraction_timestamp"])
	if v, err := strconv.ParseInt(fields["access_count"], 10, 64); err == nil {
		e.AccessCount = v
	}
	e.LastAccessed = parseTime(fields["last_accessed"])
	return e, nil
}

// Add inserts or updates the hash for entry.FilePath, preserving any
// existing access_count, and bumps the aggregate stats hash atomically.
func (s *Store) Add(entry *types.CacheEntry) error {
	ctx := context.Background()
	key := s.entryKey(entry.FilePath)

	existed, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return cerrors.Storage(component, "add", "failed to check existing entry", err)
	}
	if existed > 0 {
		existingCount, err := s.client.HGet(ctx, key, "access_count").Int64()
		if err == nil {
			entry.AccessCount = existingCount
		}
	}

	if err := s.client.HSet(ctx, key, serializeEntry(entry)).Err(); err != nil {
		return cerrors.Storage(component, "add", "failed to write entry", err)
	}

	if existed == 0 {
		if err := s.client.HIncrBy(ctx, s.statsKey(), "total_entries", 1).Err(); err != nil {
			return cerrors.Storage(component, "add", "failed to update stats", err)
		}
	}
	return nil
}

// Get returns the entry for path, if present.
func (s *Store) Get(path string) (*types.CacheEntry, bool, error) {
	ctx := context.Background()
	fields, err := s.client.HGetAll(ctx, s.entryKey(path)).Result()
	if err != nil {
		return nil, false, cerrors.Storage(component, "get", "failed to read entry", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	entry, err := deserializeEntry(path, fields)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// GetAll scans every "<prefix>:entry:*" key and returns the deserialized
// entries.
func (s *Store) GetAll() ([]*types.CacheEntry, error) {
	ctx := context.Background()
	var entries []*types.CacheEntry

	iter := s.client.Scan(ctx, 0, s.keyPrefix+":entry:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		path := strings.TrimPrefix(key, s.keyPrefix+":entry:")
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, cerrors.Storage(component, "get_all", "failed to read entry during scan", err)
		}
		if len(fields) == 0 {
			continue
		}
		entry, err := deserializeEntry(path, fields)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, cerrors.Storage(component, "get_all", "scan failed", err)
	}
	return entries, nil
}

// GetByHash scans all entries and filters by content hash; Redis has no
// secondary index here, matching the reference implementation's approach
// of scanning and filtering in application code.
func (s *Store) GetByHash(contentHash string) ([]*types.CacheEntry, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	var matches []*types.CacheEntry
	for _, e := range all {
		if e.ContentHash == contentHash {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Remove deletes the entry for path, reporting whether it existed.
func (s *Store) Remove(path string) (bool, error) {
	ctx := context.Background()
	n, err := s.client.Del(ctx, s.entryKey(path)).Result()
	if err != nil {
		return false, cerrors.Storage(component, "remove", "failed to delete entry", err)
	}
	if n > 0 {
		_ = s.client.HIncrBy(ctx, s.statsKey(), "total_entries", -1).Err()
	}
	return n > 0, nil
}

// ClearOlderThan scans all entries and removes those whose last_accessed
// predates the cutoff, returning the count removed.
func (s *Store) ClearOlderThan(cutoffDays int) (int64, error) {
	all, err := s.GetAll()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -cutoffDays)

	var removed int64
	for _, e := range all {
		if e.LastAccessed.Before(cutoff) {
			ok, err := s.Remove(e.FilePath)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}
	}
	return removed, nil
}

// Statistics reports aggregate counts computed by scanning all entries; the
// "<prefix>:stats" hash only tracks the running total_entries counter used
// internally, not the full statistics surface the cache reports.
func (s *Store) Statistics() (types.StorageStatistics, error) {
	all, err := s.GetAll()
	if err != nil {
		return types.StorageStatistics{}, err
	}
	var stats types.StorageStatistics
	hashes := make(map[string]struct{})
	for _, e := range all {
		stats.TotalEntries++
		stats.TotalSize += e.FileSize
		stats.TotalAccessCount += e.AccessCount
		hashes[e.ContentHash] = struct{}{}
	}
	stats.UniqueHashes = int64(len(hashes))
	return stats, nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return cerrors.Storage(component, "close", "failed to close redis client", err)
	}
	return nil
}
