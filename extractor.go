package extractcache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/objectfs/extractcache/pkg/types"
)

// Extractor produces the textual content of the file at path. It must be
// idempotent for identical file bytes and must not mutate the file. It may
// perform its own blocking I/O; the cache invokes it without holding any
// lock other than the per-path lock for path.
type Extractor func(ctx context.Context, path string) (string, error)

const defaultMaxConcurrent = 10

// GetContentBatch runs GetContent for every path concurrently, bounded by
// maxConcurrent (defaultMaxConcurrent when <= 0), preserving input order in
// the results. A failure for one path does not abort the others; its error
// is returned in the matching slot of the second return value.
func (c *Cache) GetContentBatch(ctx context.Context, paths []string, extractor Extractor, maxConcurrent int) ([]*types.CachedContent, []error) {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	results := make([]*types.CachedContent, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			content, err := c.GetContent(gctx, path, extractor)
			results[i] = content
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// Invalidate removes path from every cache tier. Absence at any layer is
// not an error.
func (c *Cache) Invalidate(path string) error {
	resolved, err := c.validatePath(path)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(resolved)
	defer unlock()

	c.memCache.Remove(resolved)

	entry, found, err := c.metaStore.Get(resolved)
	if err != nil {
		return err
	}
	if found && entry.HasBlobReference() {
		if _, err := c.blobStore.Delete(entry.ContentHash); err != nil {
			return err
		}
	}

	if _, err := c.metaStore.Remove(resolved); err != nil {
		return err
	}
	return nil
}

// InvalidateBatch invalidates every path concurrently, swallowing per-path
// errors, and returns the number successfully invalidated.
func (c *Cache) InvalidateBatch(paths []string) int {
	var g errgroup.Group
	results := make([]bool, len(paths))

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = c.Invalidate(path) == nil
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range results {
		if ok {
			count++
		}
	}
	return count
}

// ClearOldEntries removes persistent-store entries last accessed more than
// days ago, and wholesale-clears the in-memory LRU (a precise subset
// eviction there would require an extra scan over both tiers for no
// practical benefit).
func (c *Cache) ClearOldEntries(days int) (int64, error) {
	removed, err := c.metaStore.ClearOlderThan(days)
	if err != nil {
		return 0, err
	}
	c.memCache.Clear()
	return removed, nil
}

// GetStatistics aggregates in-memory, persistent, and request-level
// counters into a single snapshot.
func (c *Cache) GetStatistics() (types.CacheStatistics, error) {
	stats := c.metrics.Snapshot()

	memEntries, memBytes := c.memCache.Size()
	stats.MemoryEntries = int64(memEntries)
	stats.MemoryBytes = memBytes

	persistentStats, err := c.metaStore.Statistics()
	if err != nil {
		return stats, err
	}
	stats.PersistentTotalEntries = persistentStats.TotalEntries
	stats.PersistentTotalSize = persistentStats.TotalSize
	stats.PersistentUniqueHashes = persistentStats.UniqueHashes
	stats.PersistentTotalAccessCount = persistentStats.TotalAccessCount

	duplicates, err := c.countDuplicateGroups()
	if err != nil {
		return stats, err
	}
	stats.DuplicateGroups = duplicates

	c.metrics.SetMemoryUsage(memBytes)
	c.metrics.SetDiskUsage(persistentStats.TotalSize)

	return stats, nil
}

// countDuplicateGroups returns the number of distinct content hashes shared
// by more than one path in the persistent store.
func (c *Cache) countDuplicateGroups() (int64, error) {
	all, err := c.metaStore.GetAll()
	if err != nil {
		return 0, err
	}

	pathsByHash := make(map[string]map[string]struct{})
	for _, e := range all {
		paths, ok := pathsByHash[e.ContentHash]
		if !ok {
			paths = make(map[string]struct{})
			pathsByHash[e.ContentHash] = paths
		}
		paths[e.FilePath] = struct{}{}
	}

	var groups int64
	for _, paths := range pathsByHash {
		if len(paths) > 1 {
			groups++
		}
	}
	return groups, nil
}

// GetMetricsPrometheus renders the cache's counters in Prometheus text
// exposition format.
func (c *Cache) GetMetricsPrometheus() (string, error) {
	return c.metrics.PrometheusText()
}
