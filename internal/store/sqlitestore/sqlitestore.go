// Package sqlitestore is the cache's embedded-relational metadata backend,
// grounded on original_source/src/content_cache/sqlite_storage.py's
// SQLiteStorage: same table, same indexes, same large-content threshold,
// adapted from Python's connection-pool-via-queue pattern to a single
// *sql.DB whose connection pool is managed by database/sql itself (Go's
// sql.DB already IS a pool; there is no need to hand-roll one on top of
// mattn/go-sqlite3, the driver used throughout the teacher's dependency
// stack's storage layer).
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
	"github.com/objectfs/extractcache/pkg/types"
)

const component = "sqlitestore"

// LargeContentThreshold is the inline-content size limit above which the
// orchestrator stores bytes in the blob store and leaves Content empty on
// the row, recording only ContentBlobPath. Matches sqlite_storage.py's
// LARGE_CONTENT_THRESHOLD.
const LargeContentThreshold = 1024 * 1024

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	file_path TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	modification_time REAL NOT NULL,
	file_size INTEGER NOT NULL,
	content TEXT,
	content_blob_path TEXT,
	extraction_timestamp REAL NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed REAL NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_hash ON cache_entries(content_hash);
CREATE INDEX IF NOT EXISTS idx_last_accessed ON cache_entries(last_accessed);
CREATE TABLE IF NOT EXISTS cache_metadata (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// Store is a sql.DB-backed MetadataStore.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) a SQLite database at dsn with the given
// maximum pool size.
func New(dsn string, poolSize int) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, cerrors.Storage(component, "new", "failed to open sqlite database", err)
	}
	db.SetMaxOpenConns(poolSize)
	return &Store{db: db}, nil
}

// Initialize creates the schema if it does not already exist.
func (s *Store) Initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return cerrors.Storage(component, "initialize", "failed to create schema", err)
	}
	return nil
}

// toEpoch converts t to fractional Unix seconds, the same representation
// already used for modification_time, so that range comparisons
// (ClearOlderThan) are numeric rather than lexicographic.
func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*1e9)).UTC()
}

// Add upserts entry, preserving the existing access_count when a row for
// the same file_path already exists, matching the reference
// implementation's "INSERT ... ON CONFLICT DO UPDATE" semantics.
func (s *Store) Add(entry *types.CacheEntry) error {
	var existingAccessCount int64
	row := s.db.QueryRow(`SELECT access_count FROM cache_entries WHERE file_path = ?`, entry.FilePath)
	if err := row.Scan(&existingAccessCount); err == nil {
		entry.AccessCount = existingAccessCount
	} else if err != sql.ErrNoRows {
		return cerrors.Storage(component, "add", "failed to read existing access_count", err)
	}

	var content sql.NullString
	if entry.ContentSet {
		content = sql.NullString{String: entry.Content, Valid: true}
	}
	var blobPath sql.NullString
	if entry.ContentBlobPath != "" {
		blobPath = sql.NullString{String: entry.ContentBlobPath, Valid: true}
	}

	lastAccessed := entry.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO cache_entries
			(file_path, content_hash, modification_time, file_size, content,
			 content_blob_path, extraction_timestamp, access_count, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			modification_time = excluded.modification_time,
			file_size = excluded.file_size,
			content = excluded.content,
			content_blob_path = excluded.content_blob_path,
			extraction_timestamp = excluded.extraction_timestamp,
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed
	`,
		entry.FilePath, entry.ContentHash, entry.ModificationTime, entry.FileSize, content,
		blobPath, toEpoch(entry.ExtractionTimestamp), entry.AccessCount, toEpoch(lastAccessed), toEpoch(time.Now()),
	)
	if err != nil {
		return cerrors.Storage(component, "add", "failed to upsert entry", err)
	}
	return nil
}

func scanEntry(row interface {
	Scan(dest ...any) error
}) (*types.CacheEntry, error) {
	var e types.CacheEntry
	var content, blobPath sql.NullString
	var extractionTs, lastAccessed float64

	err := row.Scan(
		&e.FilePath, &e.ContentHash, &e.ModificationTime, &e.FileSize, &content,
		&blobPath, &extractionTs, &e.AccessCount, &lastAccessed,
	)
	if err != nil {
		return nil, err
	}
	if content.Valid {
		e.Content = content.String
		e.ContentSet = true
	}
	if blobPath.Valid {
		e.ContentBlobPath = blobPath.String
	}
	e.ExtractionTimestamp = fromEpoch(extractionTs)
	e.LastAccessed = fromEpoch(lastAccessed)
	return &e, nil
}

const selectColumns = `file_path, content_hash, modification_time, file_size, content,
	content_blob_path, extraction_timestamp, access_count, last_accessed`

// Get returns the entry for path, if present.
func (s *Store) Get(path string) (*types.CacheEntry, bool, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM cache_entries WHERE file_path = ?`, selectColumns), path)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cerrors.Storage(component, "get", "failed to read entry", err)
	}
	return entry, true, nil
}

// GetByHash returns every entry sharing contentHash.
func (s *Store) GetByHash(contentHash string) ([]*types.CacheEntry, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM cache_entries WHERE content_hash = ?`, selectColumns), contentHash)
	if err != nil {
		return nil, cerrors.Storage(component, "get_by_hash", "failed to query entries", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// GetAll returns every entry in the store.
func (s *Store) GetAll() ([]*types.CacheEntry, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM cache_entries`, selectColumns))
	if err != nil {
		return nil, cerrors.Storage(component, "get_all", "failed to query entries", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]*types.CacheEntry, error) {
	var entries []*types.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, cerrors.Storage(component, "scan", "failed to scan entry row", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.Storage(component, "scan", "row iteration failed", err)
	}
	return entries, nil
}

// Remove deletes the entry for path, reporting whether it existed.
func (s *Store) Remove(path string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE file_path = ?`, path)
	if err != nil {
		return false, cerrors.Storage(component, "remove", "failed to delete entry", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearOlderThan removes entries whose last_accessed is older than
// cutoffDays and returns the count removed.
func (s *Store) ClearOlderThan(cutoffDays int) (int64, error) {
	cutoff := toEpoch(time.Now().AddDate(0, 0, -cutoffDays))
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE last_accessed < ?`, cutoff)
	if err != nil {
		return 0, cerrors.Storage(component, "clear_older_than", "failed to delete stale entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Statistics reports aggregate counts over the whole store.
func (s *Store) Statistics() (types.StorageStatistics, error) {
	var stats types.StorageStatistics
	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(file_size), 0),
			COUNT(DISTINCT content_hash),
			COALESCE(SUM(access_count), 0)
		FROM cache_entries
	`)
	if err := row.Scan(&stats.TotalEntries, &stats.TotalSize, &stats.UniqueHashes, &stats.TotalAccessCount); err != nil {
		return stats, cerrors.Storage(component, "statistics", "failed to compute statistics", err)
	}
	return stats, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return cerrors.Storage(component, "close", "failed to close database", err)
	}
	return nil
}
