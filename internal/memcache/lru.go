// Package memcache implements the cache's in-memory tier: a single,
// size-bounded LRU keyed by file path, serialized by one mutex covering both
// the ordering list and the size counter — the same container/list-backed
// structure the teacher's internal/cache.LRUCache uses, narrowed to the
// cache's capacity-only eviction policy (no TTL, no weighting) and re-keyed
// by path alone instead of path:offset:size byte ranges, since this cache
// holds whole-file extraction results rather than streamed byte ranges.
package memcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/objectfs/extractcache/pkg/types"
)

type element struct {
	path  string
	entry *types.CacheEntry
	size  int64
}

// LRU is a thread-safe, size-bounded cache of types.CacheEntry values keyed
// by file path.
type LRU struct {
	mu          sync.Mutex
	maxBytes    int64
	currentSize int64
	items       map[string]*list.Element
	order       *list.List
}

// New creates an LRU with the given byte capacity.
func New(maxBytes int64) *LRU {
	return &LRU{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Add inserts or replaces the entry for entry.FilePath, evicting
// least-recently-used entries as needed to stay within the byte limit. An
// entry whose own size exceeds the limit is silently rejected rather than
// evicting everything else to make room for it.
func (l *LRU) Add(entry *types.CacheEntry) {
	size := entry.ApproxSize()

	l.mu.Lock()
	defer l.mu.Unlock()

	if size > l.maxBytes {
		return
	}

	if existing, ok := l.items[entry.FilePath]; ok {
		l.removeElement(existing)
	}

	for l.currentSize+size > l.maxBytes && l.order.Len() > 0 {
		oldest := l.order.Back()
		l.removeElement(oldest)
	}

	el := l.order.PushFront(&element{path: entry.FilePath, entry: entry, size: size})
	l.items[entry.FilePath] = el
	l.currentSize += size
}

// Get returns the entry for path, if present, incrementing its access
// count, bumping last_accessed, and moving it to the most-recently-used
// position.
func (l *LRU) Get(path string) (*types.CacheEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[path]
	if !ok {
		return nil, false
	}

	l.order.MoveToFront(el)
	e := el.Value.(*element).entry
	e.AccessCount++
	e.LastAccessed = time.Now()
	return e, true
}

// Remove deletes the entry for path, if present, and reports whether it was
// found.
func (l *LRU) Remove(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[path]
	if !ok {
		return false
	}
	l.removeElement(el)
	return true
}

// Clear empties the cache.
func (l *LRU) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = make(map[string]*list.Element)
	l.order.Init()
	l.currentSize = 0
}

// Size reports the current entry count and the approximate byte total —
// the invariant the orchestrator's statistics surface and the cache's test
// suite both check: CurrentBytes must equal the sum of per-entry
// ApproxSize() at all times.
func (l *LRU) Size() (entries int, currentBytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len(), l.currentSize
}

// removeElement must be called with l.mu held.
func (l *LRU) removeElement(el *list.Element) {
	item := el.Value.(*element)
	delete(l.items, item.path)
	l.order.Remove(el)
	l.currentSize -= item.size
}
