// Package blobstore persists extracted content too large to inline in
// metadata rows, addressed by content hash and sharded two levels deep
// (<base>/<hash[0:2]>/<hash[2:4]>/<hash>.gz), matching the layout in
// original_source/src/content_cache/file_storage.py. Unlike that Python
// implementation — which writes the compressed blob directly to its final
// path — writes here go through a temp-file-plus-rename with a directory
// fsync, the atomic-publish pattern from mfinelli-modctl's
// internal/blobstore.IngestFile, because Go gives concurrent writers for the
// same hash no interpreter-level serialization to lean on.
package blobstore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
)

const component = "blobstore"

// Store is a content-addressed, zlib-compressed blob store rooted at a base
// directory.
type Store struct {
	baseDir          string
	compressionLevel int
}

// New returns a Store rooted at baseDir, creating it if necessary.
// compressionLevel follows compress/zlib's convention (0-9, or
// zlib.DefaultCompression).
func New(baseDir string, compressionLevel int) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, cerrors.Storage(component, "new", "failed to create blob store directory", err)
	}
	return &Store{baseDir: baseDir, compressionLevel: compressionLevel}, nil
}

func (s *Store) pathFor(hash string) (string, error) {
	if len(hash) < 4 {
		return "", cerrors.Corruption(component, "path", hash, "content hash too short to shard", nil)
	}
	return filepath.Join(s.baseDir, hash[0:2], hash[2:4], hash+".gz"), nil
}

// Exists reports whether a blob for hash is already stored.
func (s *Store) Exists(hash string) bool {
	path, err := s.pathFor(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Size returns the on-disk (compressed) size of the blob for hash.
func (s *Store) Size(hash string) (int64, error) {
	path, err := s.pathFor(hash)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, cerrors.NotFound(component, "size", hash)
	}
	return info.Size(), nil
}

// Store compresses content and writes it under hash's sharded path,
// publishing it atomically via temp-file-plus-rename. A blob that already
// exists for hash is left untouched and its existing path is returned.
func (s *Store) Store(hash string, content []byte) (string, error) {
	finalPath, err := s.pathFor(hash)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	finalDir := filepath.Dir(finalPath)
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return "", cerrors.Storage(component, "store", "failed to create shard directory", err)
	}

	var compressed bytes.Buffer
	w, err := zlib.NewWriterLevel(&compressed, s.compressionLevel)
	if err != nil {
		return "", cerrors.Storage(component, "store", "failed to initialize compressor", err)
	}
	if _, err := w.Write(content); err != nil {
		return "", cerrors.Storage(component, "store", "failed to compress blob", err)
	}
	if err := w.Close(); err != nil {
		return "", cerrors.Storage(component, "store", "failed to finalize compression", err)
	}

	tmp, err := os.CreateTemp(finalDir, ".tmp-*")
	if err != nil {
		return "", cerrors.Storage(component, "store", "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		return "", cerrors.Storage(component, "store", "failed to write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", cerrors.Storage(component, "store", "failed to fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", cerrors.Storage(component, "store", "failed to close temp file", err)
	}

	if err := os.Rename(tmpName, finalPath); err != nil {
		if _, statErr := os.Stat(finalPath); statErr == nil {
			return finalPath, nil
		}
		return "", cerrors.Storage(component, "store", "failed to publish blob", err)
	}

	_ = fsyncDir(finalDir)

	return finalPath, nil
}

// Retrieve decompresses and returns the blob stored for hash. Any
// decompression or read failure is treated the same as the blob being
// absent — (nil, false, nil) — rather than propagated, since a corrupt blob
// and a missing one both mean "nothing usable is cached here."
func (s *Store) Retrieve(hash string) ([]byte, bool, error) {
	path, err := s.pathFor(hash)
	if err != nil {
		return nil, false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, nil
	}
	defer f.Close()

	r, err := zlib.NewReader(f)
	if err != nil {
		return nil, false, nil
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, false, nil
	}
	return content, true, nil
}

// Delete removes the blob for hash, reporting whether it existed. It then
// opportunistically removes the two sharding parent directories if they are
// now empty, matching file_storage.py's delete(): each rmdir is best-effort
// and a non-empty directory is not an error.
func (s *Store) Delete(hash string) (bool, error) {
	path, err := s.pathFor(hash)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, cerrors.Storage(component, "delete", "failed to remove blob", err)
	}

	shardDir := filepath.Dir(path)
	_ = os.Remove(shardDir)
	_ = os.Remove(filepath.Dir(shardDir))

	return true, nil
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
