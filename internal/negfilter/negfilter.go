// Package negfilter wraps a bloom filter of paths previously observed not
// to exist on disk, so that a repeated lookup of a still-absent path is
// rejected on the "asked again, still absent" fast path. Grounded on the
// cache's negative-existence-filter component; backed by
// github.com/bits-and-blooms/bloom/v3.
package negfilter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const falsePositiveRate = 0.001

// Filter is a mutex-guarded wrapper around a bloom.BloomFilter sized for
// expectedItems entries at a ~0.1% false-positive rate. The orchestrator
// uses it before taking any per-path lock, so it is safe for concurrent use.
type Filter struct {
	mu sync.Mutex
	bf *bloom.BloomFilter
}

// New returns a Filter sized for expectedItems distinct paths.
func New(expectedItems uint) *Filter {
	return &Filter{bf: bloom.NewWithEstimates(expectedItems, falsePositiveRate)}
}

// Add records path as having been observed missing on disk.
func (f *Filter) Add(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bf.Add([]byte(path))
}

// MightContain reports whether path may have been added. False means path
// was definitely never added; true means it probably was, but may be a
// false positive, so callers must still confirm absence with a fresh stat.
func (f *Filter) MightContain(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bf.Test([]byte(path))
}

// Reset clears all entries, used when the filter's false-positive rate has
// drifted too high from over-insertion and a rebuild is warranted.
func (f *Filter) Reset(expectedItems uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bf = bloom.NewWithEstimates(expectedItems, falsePositiveRate)
}
