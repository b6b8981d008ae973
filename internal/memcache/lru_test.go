package memcache

import (
	"testing"

	"github.com/objectfs/extractcache/pkg/types"
)

func entryOfSize(path string, contentBytes int) *types.CacheEntry {
	return &types.CacheEntry{
		FilePath:    path,
		ContentHash: "deadbeef",
		Content:     string(make([]byte, contentBytes)),
		ContentSet:  true,
	}
}

func TestLRUAddAndGet(t *testing.T) {
	l := New(1 << 20)
	e := entryOfSize("/a.txt", 10)
	l.Add(e)

	got, ok := l.Get("/a.txt")
	if !ok {
		t.Fatalf("expected entry to be present")
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access_count 1, got %d", got.AccessCount)
	}
}

func TestLRUEvictsOldestWhenOverCapacity(t *testing.T) {
	// Room for exactly two entries: ApproxSize counts fixed per-entry
	// overhead plus path and hash, not just the 100 content bytes.
	l := New(2 * entryOfSize("/a.txt", 100).ApproxSize())
	l.Add(entryOfSize("/a.txt", 100))
	l.Add(entryOfSize("/b.txt", 100))
	l.Add(entryOfSize("/c.txt", 100))

	// /a.txt should be evicted first since it's least recently touched.
	if _, ok := l.Get("/a.txt"); ok {
		t.Fatalf("expected /a.txt to have been evicted")
	}
	if _, ok := l.Get("/b.txt"); !ok {
		t.Fatalf("expected /b.txt to still be cached")
	}
}

func TestLRURejectsEntryLargerThanCapacity(t *testing.T) {
	l := New(50)
	l.Add(entryOfSize("/huge.txt", 1000))

	if _, ok := l.Get("/huge.txt"); ok {
		t.Fatalf("expected oversized entry to be rejected")
	}
	entries, bytes := l.Size()
	if entries != 0 || bytes != 0 {
		t.Fatalf("expected empty cache after rejection, got entries=%d bytes=%d", entries, bytes)
	}
}

func TestLRUSizeAccountingMatchesSumOfEntrySizes(t *testing.T) {
	l := New(1 << 20)
	a := entryOfSize("/a.txt", 10)
	b := entryOfSize("/b.txt", 20)
	l.Add(a)
	l.Add(b)

	_, bytes := l.Size()
	want := a.ApproxSize() + b.ApproxSize()
	if bytes != want {
		t.Fatalf("expected currentSize %d, got %d", want, bytes)
	}

	l.Remove("/a.txt")
	_, bytes = l.Size()
	if bytes != b.ApproxSize() {
		t.Fatalf("expected currentSize %d after remove, got %d", b.ApproxSize(), bytes)
	}
}

func TestLRURecencyOnGetProtectsFromEviction(t *testing.T) {
	// Room for exactly two entries (see ApproxSize).
	l := New(2 * entryOfSize("/a.txt", 100).ApproxSize())
	l.Add(entryOfSize("/a.txt", 100))
	l.Add(entryOfSize("/b.txt", 100))

	// touch /a.txt so it becomes most-recently-used
	l.Get("/a.txt")

	l.Add(entryOfSize("/c.txt", 100))

	if _, ok := l.Get("/a.txt"); !ok {
		t.Fatalf("expected recently-touched /a.txt to survive eviction")
	}
	if _, ok := l.Get("/b.txt"); ok {
		t.Fatalf("expected /b.txt (least recently used) to be evicted")
	}
}

func TestLRUClear(t *testing.T) {
	l := New(1 << 20)
	l.Add(entryOfSize("/a.txt", 10))
	l.Clear()

	entries, bytes := l.Size()
	if entries != 0 || bytes != 0 {
		t.Fatalf("expected empty cache after Clear, got entries=%d bytes=%d", entries, bytes)
	}
}
