// Package integrity computes content fingerprints and classifies cache
// entries as valid, file-missing, mtime-bumped-but-content-identical, or
// content-changed — the tiered verification protocol described by
// original_source/src/content_cache/integrity.py's FileIntegrityChecker,
// adapted to synchronous chunked reads (Go has no async I/O distinction to
// preserve) and to Go's errgroup for the batch variant.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/objectfs/extractcache/pkg/types"
)

const defaultChunkSize = 8192

// Checker verifies CacheEntry freshness against the filesystem.
type Checker struct {
	verifyHash bool
	chunkSize  int
}

// New returns a Checker. When verifyHash is false, mtime alone drives
// freshness and an advanced mtime is always treated as FileModified.
func New(verifyHash bool) *Checker {
	return &Checker{verifyHash: verifyHash, chunkSize: defaultChunkSize}
}

// ComputeHash reads path in fixed-size chunks and returns the lowercase hex
// SHA-256 digest of its contents. It never buffers the whole file.
func (c *Checker) ComputeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, c.chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check applies the tiered verification protocol to entry: existence, then
// mtime, then (when enabled) content hash.
func (c *Checker) Check(entry *types.CacheEntry) types.IntegrityStatus {
	info, err := os.Stat(entry.FilePath)
	if err != nil {
		return types.StatusFileMissing
	}

	currentMtime := float64(info.ModTime().UnixNano()) / 1e9

	if currentMtime <= entry.ModificationTime {
		if !c.verifyHash {
			return types.StatusValid
		}
		hash, err := c.ComputeHash(entry.FilePath)
		if err != nil {
			return types.StatusFileMissing
		}
		if hash == entry.ContentHash {
			return types.StatusValid
		}
		return types.StatusContentChanged
	}

	// mtime advanced.
	if !c.verifyHash {
		return types.StatusFileModified
	}
	hash, err := c.ComputeHash(entry.FilePath)
	if err != nil {
		return types.StatusFileMissing
	}
	if hash == entry.ContentHash {
		// Redownload recognition: bytes are identical despite the new mtime.
		return types.StatusValid
	}
	return types.StatusContentChanged
}

// CheckBatch verifies every entry concurrently, one errgroup goroutine per
// entry with no concurrency limit, and returns a status for every input
// path.
func (c *Checker) CheckBatch(entries []*types.CacheEntry) map[string]types.IntegrityStatus {
	results := make(map[string]types.IntegrityStatus, len(entries))
	statuses := make([]types.IntegrityStatus, len(entries))

	var g errgroup.Group
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			statuses[i] = c.Check(entry)
			return nil
		})
	}
	_ = g.Wait()

	for i, entry := range entries {
		results[entry.FilePath] = statuses[i]
	}
	return results
}
