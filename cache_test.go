package extractcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/objectfs/extractcache/internal/config"
	cerrors "github.com/objectfs/extractcache/pkg/errors"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := config.NewDefault()
	cfg.CacheDir = t.TempDir()
	cfg.Backend = "sqlite"

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func countingExtractor(calls *int64) Extractor {
	return func(ctx context.Context, path string) (string, error) {
		atomic.AddInt64(calls, 1)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.ToUpper(string(data)), nil
	}
}

func TestGetContentExtractsOnceThenHitsCache(t *testing.T) {
	c := newTestCache(t)
	path := writeFixture(t, "hello world")

	var calls int64
	extractor := countingExtractor(&calls)

	result1, err := c.GetContent(context.Background(), path, extractor)
	if err != nil {
		t.Fatalf("first GetContent: %v", err)
	}
	if result1.FromCache {
		t.Fatalf("expected first call to be a miss")
	}
	if result1.Content != "HELLO WORLD" {
		t.Fatalf("unexpected content: %q", result1.Content)
	}

	result2, err := c.GetContent(context.Background(), path, extractor)
	if err != nil {
		t.Fatalf("second GetContent: %v", err)
	}
	if !result2.FromCache {
		t.Fatalf("expected second call to be a hit")
	}
	if result2.Content != "HELLO WORLD" {
		t.Fatalf("unexpected cached content: %q", result2.Content)
	}

	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected extractor to run exactly once, ran %d times", calls)
	}
}

func TestGetContentConcurrentCallsCollapseToOneExtraction(t *testing.T) {
	c := newTestCache(t)
	path := writeFixture(t, "hello world")

	const goroutines = 20
	var calls int64
	ready := make(chan struct{})
	release := make(chan struct{})

	extractor := func(ctx context.Context, p string) (string, error) {
		atomic.AddInt64(&calls, 1)
		close(ready)
		<-release
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		return strings.ToUpper(string(data)), nil
	}

	contents := make([]string, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.GetContent(context.Background(), path, extractor)
			errs[i] = err
			if err == nil {
				contents[i] = result.Content
			}
		}()
	}

	<-ready
	close(release)
	wg.Wait()

	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected extractor to run exactly once across %d concurrent callers, ran %d times", goroutines, calls)
	}
	for i := range contents {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: unexpected error: %v", i, errs[i])
		}
		if contents[i] != "HELLO WORLD" {
			t.Fatalf("goroutine %d: unexpected content: %q", i, contents[i])
		}
	}
}

func TestGetContentMissingFileReturnsNotFound(t *testing.T) {
	c := newTestCache(t)
	var calls int64

	_, err := c.GetContent(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), countingExtractor(&calls))
	if !cerrors.Is(err, cerrors.KindNotFound) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected extractor not to run for a missing file")
	}
}

func TestGetContentRejectsPathTraversal(t *testing.T) {
	c := newTestCache(t)
	var calls int64

	_, err := c.GetContent(context.Background(), "../etc/passwd", countingExtractor(&calls))
	if !cerrors.Is(err, cerrors.KindPermission) {
		t.Fatalf("expected Permission error, got %v", err)
	}
}

func TestGetContentReExtractsAfterContentChange(t *testing.T) {
	c := newTestCache(t)
	path := writeFixture(t, "version one")
	var calls int64
	extractor := countingExtractor(&calls)

	if _, err := c.GetContent(context.Background(), path, extractor); err != nil {
		t.Fatalf("first GetContent: %v", err)
	}

	if err := os.WriteFile(path, []byte("version two, much longer now"), 0o644); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}

	result, err := c.GetContent(context.Background(), path, extractor)
	if err != nil {
		t.Fatalf("second GetContent: %v", err)
	}
	if result.FromCache {
		t.Fatalf("expected re-extraction after content change")
	}
	if result.Content != "VERSION TWO, MUCH LONGER NOW" {
		t.Fatalf("unexpected content after re-extraction: %q", result.Content)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected extractor to run twice, ran %d times", calls)
	}
}

func TestGetContentExtractorErrorPropagates(t *testing.T) {
	c := newTestCache(t)
	path := writeFixture(t, "content")

	boom := func(ctx context.Context, path string) (string, error) {
		return "", os.ErrPermission
	}

	_, err := c.GetContent(context.Background(), path, boom)
	if !cerrors.Is(err, cerrors.KindProcessing) {
		t.Fatalf("expected Processing error, got %v", err)
	}

	if _, ok, _ := c.metaStore.Get(path); ok {
		t.Fatalf("expected no entry to be stored after extractor failure")
	}
}

func TestGetContentBatchPreservesOrder(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	extractor := countingExtractor(&calls)

	paths := make([]string, 5)
	for i := range paths {
		paths[i] = writeFixture(t, "content")
	}

	results, errs := c.GetContentBatch(context.Background(), paths, extractor, 2)
	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error at index %d: %v", i, err)
		}
		if results[i].Content != "CONTENT" {
			t.Fatalf("unexpected content at index %d: %q", i, results[i].Content)
		}
	}
}

func TestInvalidateRemovesEntryAndAllowsReExtraction(t *testing.T) {
	c := newTestCache(t)
	path := writeFixture(t, "content")
	var calls int64
	extractor := countingExtractor(&calls)

	if _, err := c.GetContent(context.Background(), path, extractor); err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if err := c.Invalidate(path); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	result, err := c.GetContent(context.Background(), path, extractor)
	if err != nil {
		t.Fatalf("GetContent after invalidate: %v", err)
	}
	if result.FromCache {
		t.Fatalf("expected a miss after invalidate")
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected extractor to run twice, ran %d", calls)
	}
}

func TestInvalidateBatchCountsSuccesses(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	extractor := countingExtractor(&calls)

	paths := []string{writeFixture(t, "a"), writeFixture(t, "b")}
	for _, p := range paths {
		if _, err := c.GetContent(context.Background(), p, extractor); err != nil {
			t.Fatalf("GetContent: %v", err)
		}
	}

	count := c.InvalidateBatch(paths)
	if count != 2 {
		t.Fatalf("expected 2 successful invalidations, got %d", count)
	}
}

func TestGetStatisticsReflectsActivity(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	extractor := countingExtractor(&calls)

	path := writeFixture(t, "content")
	if _, err := c.GetContent(context.Background(), path, extractor); err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if _, err := c.GetContent(context.Background(), path, extractor); err != nil {
		t.Fatalf("GetContent: %v", err)
	}

	stats, err := c.GetStatistics()
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.TotalRequests != 2 {
		t.Fatalf("expected 2 total requests, got %d", stats.TotalRequests)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got hits=%d misses=%d", stats.CacheHits, stats.CacheMisses)
	}
	if stats.PersistentTotalEntries != 1 {
		t.Fatalf("expected 1 persistent entry, got %d", stats.PersistentTotalEntries)
	}
}

func TestDuplicateGroupsCountsSharedHashes(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	extractor := countingExtractor(&calls)

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	os.WriteFile(pathA, []byte("same bytes"), 0o644)
	os.WriteFile(pathB, []byte("same bytes"), 0o644)

	if _, err := c.GetContent(context.Background(), pathA, extractor); err != nil {
		t.Fatalf("GetContent A: %v", err)
	}
	if _, err := c.GetContent(context.Background(), pathB, extractor); err != nil {
		t.Fatalf("GetContent B: %v", err)
	}

	stats, err := c.GetStatistics()
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.DuplicateGroups != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", stats.DuplicateGroups)
	}
}

func TestGetMetricsPrometheusReturnsText(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	path := writeFixture(t, "content")
	if _, err := c.GetContent(context.Background(), path, countingExtractor(&calls)); err != nil {
		t.Fatalf("GetContent: %v", err)
	}

	text, err := c.GetMetricsPrometheus()
	if err != nil {
		t.Fatalf("GetMetricsPrometheus: %v", err)
	}
	if !strings.Contains(text, "cache_requests_total") {
		t.Fatalf("expected prometheus text to contain cache_requests_total, got:\n%s", text)
	}
}

func TestLargeContentRoutesToBlobStoreAndSkipsMemCache(t *testing.T) {
	c := newTestCache(t)
	large := strings.Repeat("x", largeContentThreshold+1)

	extractor := func(ctx context.Context, path string) (string, error) {
		return large, nil
	}

	path := writeFixture(t, "trigger")
	result, err := c.GetContent(context.Background(), path, extractor)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if result.Content != large {
		t.Fatalf("expected large content to round-trip intact")
	}

	if _, ok := c.memCache.Get(path); ok {
		t.Fatalf("expected large entry to be excluded from the in-memory LRU")
	}

	entry, ok, err := c.metaStore.Get(path)
	if err != nil || !ok {
		t.Fatalf("expected entry in persistent store: ok=%v err=%v", ok, err)
	}
	if !entry.HasBlobReference() {
		t.Fatalf("expected entry to carry a blob reference")
	}
	if entry.HasInlineContent() {
		t.Fatalf("expected entry to not carry inline content")
	}
}

func TestClearOldEntriesClearsMemCache(t *testing.T) {
	c := newTestCache(t)
	var calls int64
	path := writeFixture(t, "content")
	if _, err := c.GetContent(context.Background(), path, countingExtractor(&calls)); err != nil {
		t.Fatalf("GetContent: %v", err)
	}

	if _, ok := c.memCache.Get(path); !ok {
		t.Fatalf("expected entry to be in memcache before clear")
	}

	if _, err := c.ClearOldEntries(0); err != nil {
		t.Fatalf("ClearOldEntries: %v", err)
	}

	if _, ok := c.memCache.Get(path); ok {
		t.Fatalf("expected memcache to be cleared")
	}
}
