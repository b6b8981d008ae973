package extractcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/objectfs/extractcache/internal/blobstore"
	"github.com/objectfs/extractcache/internal/config"
	"github.com/objectfs/extractcache/internal/integrity"
	"github.com/objectfs/extractcache/internal/lockregistry"
	"github.com/objectfs/extractcache/internal/memcache"
	"github.com/objectfs/extractcache/internal/metrics"
	"github.com/objectfs/extractcache/internal/negfilter"
	"github.com/objectfs/extractcache/internal/store"
	"github.com/objectfs/extractcache/internal/store/redisstore"
	"github.com/objectfs/extractcache/internal/store/sqlitestore"
	cerrors "github.com/objectfs/extractcache/pkg/errors"
	"github.com/objectfs/extractcache/pkg/types"
	"github.com/objectfs/extractcache/pkg/utils"
)

// newLogger builds the cache's structured logger from cfg, lowering the
// threshold to DEBUG when cfg.Debug is set (per spec, debug has no other
// semantic effect).
func newLogger(cfg *config.Configuration) *utils.StructuredLogger {
	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = utils.INFO
	}
	if cfg.Debug {
		level = utils.DEBUG
	}

	loggerCfg := utils.DefaultStructuredLoggerConfig()
	loggerCfg.Level = level
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			loggerCfg.Output = f
		}
	}

	logger, err := utils.NewStructuredLogger(loggerCfg)
	if err != nil {
		logger, _ = utils.NewStructuredLogger(utils.DefaultStructuredLoggerConfig())
	}
	return logger.WithComponent(component)
}

const component = "cache"

// largeContentThreshold is the inline-content size limit above which a
// fresh entry's content is routed to the blob store instead of the
// persistent store row and the in-memory LRU.
const largeContentThreshold = sqlitestore.LargeContentThreshold

// Cache is the primary entry point: a content-addressed, multi-tier cache
// that guarantees an Extractor runs at most once per distinct file content.
type Cache struct {
	cfg *config.Configuration

	metaStore  store.MetadataStore
	blobStore  *blobstore.Store
	memCache   *memcache.LRU
	locks      *lockregistry.Registry
	filter     *negfilter.Filter
	checker    *integrity.Checker
	metrics    *metrics.Metrics
	logger     *utils.StructuredLogger

	mu          sync.Mutex
	initialized bool
}

// New constructs a Cache from cfg without performing any I/O; call
// Initialize before first use.
func New(cfg *config.Configuration) (*Cache, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var metaStore store.MetadataStore
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		metaStore = redisstore.New(client, cfg.RedisConfig.KeyPrefix)
	default:
		dsn := filepath.Join(cfg.CacheDir, "cache.db")
		sqlStore, err := sqlitestore.New(dsn, cfg.DBPoolSize)
		if err != nil {
			return nil, err
		}
		metaStore = sqlStore
	}

	blobDir := filepath.Join(cfg.CacheDir, "blobs")
	blobStore, err := blobstore.New(blobDir, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	return &Cache{
		cfg:       cfg,
		metaStore: metaStore,
		blobStore: blobStore,
		memCache:  memcache.New(cfg.MaxMemorySize),
		locks:     lockregistry.New(),
		filter:    negfilter.New(cfg.BloomFilterSize),
		checker:   integrity.New(cfg.VerifyHash),
		metrics:   metrics.New(),
		logger:    newLogger(cfg),
	}, nil
}

// Initialize prepares the backing store (schema creation / connectivity
// check). Safe to call more than once.
func (c *Cache) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if err := os.MkdirAll(c.cfg.CacheDir, 0o755); err != nil {
		return cerrors.Storage(component, "initialize", "failed to create cache_dir", err)
	}
	if err := c.metaStore.Initialize(); err != nil {
		c.logger.Error("failed to initialize metadata store", map[string]interface{}{"error": err.Error()})
		return err
	}
	c.initialized = true
	c.logger.Info("cache initialized", map[string]interface{}{"cache_dir": c.cfg.CacheDir, "backend": c.cfg.Backend})
	return nil
}

// Close releases the backing store's resources.
func (c *Cache) Close() error {
	_ = c.logger.Close()
	return c.metaStore.Close()
}

func (c *Cache) validatePath(path string) (string, error) {
	return utils.ValidateFilePath(path, c.cfg.AllowedPaths)
}

// GetContent returns the cached or freshly extracted content for path,
// running extractor at most once per distinct file content. See
// package doc for lifecycle requirements.
func (c *Cache) GetContent(ctx context.Context, path string, extractor Extractor) (*types.CachedContent, error) {
	timer := c.metrics.StartTimer()

	resolved, err := c.validatePath(path)
	if err != nil {
		c.metrics.RecordError(cerrors.KindPermission.String())
		return nil, err
	}

	if c.filter.MightContain(resolved) {
		if _, statErr := os.Stat(resolved); statErr != nil {
			c.metrics.RecordBloomFilterHit()
			timer.ObserveMiss()
			return nil, cerrors.NotFound(component, "get_content", resolved)
		}
	} else if _, statErr := os.Stat(resolved); statErr != nil {
		c.filter.Add(resolved)
		timer.ObserveMiss()
		return nil, cerrors.NotFound(component, "get_content", resolved)
	}

	unlock := c.locks.Lock(resolved)
	defer unlock()

	if entry, ok := c.memCache.Get(resolved); ok {
		if c.checker.Check(entry) == types.StatusValid {
			timer.ObserveHit()
			return hitFromEntry(entry), nil
		}
	}

	entry, found, err := c.metaStore.Get(resolved)
	if err != nil {
		c.metrics.RecordError(cerrors.KindStorage.String())
		c.logger.Error("persistent store read failed", map[string]interface{}{"path": resolved, "error": err.Error()})
		timer.ObserveMiss()
		return nil, err
	}
	if found && c.checker.Check(entry) == types.StatusValid {
		content, ok, retrieveErr := c.hydrate(entry)
		if retrieveErr == nil && ok {
			c.memCache.Add(entry)
			timer.ObserveHit()
			return hitFromEntry(entry), nil
		}
		// blob absent or decompression failed: fall through to re-extraction.
		_ = content
	}

	return c.extractAndStore(ctx, resolved, extractor, timer)
}

// hydrate ensures entry.Content is populated, retrieving from the blob
// store when the entry only carries a blob reference.
func (c *Cache) hydrate(entry *types.CacheEntry) (string, bool, error) {
	if entry.HasInlineContent() {
		return entry.Content, true, nil
	}
	if !entry.HasBlobReference() {
		return "", false, nil
	}
	content, ok, err := c.blobStore.Retrieve(entry.ContentHash)
	if err != nil || !ok {
		return "", false, err
	}
	entry.Content = string(content)
	return entry.Content, true, nil
}

func hitFromEntry(entry *types.CacheEntry) *types.CachedContent {
	return &types.CachedContent{
		Content:             entry.Content,
		FromCache:           true,
		ContentHash:         entry.ContentHash,
		ExtractionTimestamp: entry.ExtractionTimestamp,
		FileSize:            entry.FileSize,
	}
}

func (c *Cache) extractAndStore(ctx context.Context, path string, extractor Extractor, timer *metrics.Timer) (*types.CachedContent, error) {
	info, err := os.Stat(path)
	if err != nil {
		timer.ObserveMiss()
		return nil, cerrors.NotFound(component, "get_content", path)
	}

	hash, err := c.checker.ComputeHash(path)
	if err != nil {
		c.metrics.RecordError(cerrors.KindStorage.String())
		timer.ObserveMiss()
		return nil, cerrors.Storage(component, "get_content", "failed to hash file", err)
	}

	content, err := extractor(ctx, path)
	if err != nil {
		c.metrics.RecordError(cerrors.KindProcessing.String())
		c.logger.Warn("extractor failed", map[string]interface{}{"path": path, "error": err.Error()})
		timer.ObserveMiss()
		return nil, cerrors.Processing(component, "get_content", path, err)
	}

	c.logger.Debug("extracted content", map[string]interface{}{"path": path, "content_hash": hash, "bytes": len(content)})

	now := time.Now()
	entry := &types.CacheEntry{
		FilePath:            path,
		ContentHash:         hash,
		ModificationTime:    float64(info.ModTime().UnixNano()) / 1e9,
		FileSize:            info.Size(),
		ExtractionTimestamp: now,
		LastAccessed:        now,
		AccessCount:         0,
	}

	if err := c.route(entry, content); err != nil {
		c.metrics.RecordError(cerrors.KindStorage.String())
		timer.ObserveMiss()
		return nil, err
	}

	timer.ObserveMiss()
	return &types.CachedContent{
		Content:             content,
		FromCache:           false,
		ContentHash:         hash,
		ExtractionTimestamp: now,
		FileSize:            info.Size(),
	}, nil
}

// route stores a freshly extracted entry per the storage-tier policy:
// large content goes to the blob store and skips the in-memory LRU; small
// content is inlined and promoted into the LRU.
func (c *Cache) route(entry *types.CacheEntry, content string) error {
	if int64(len(content)) > largeContentThreshold {
		blobPath, err := c.blobStore.Store(entry.ContentHash, []byte(content))
		if err != nil {
			return err
		}
		entry.ContentBlobPath = blobPath
		entry.Content = ""
		entry.ContentSet = false
		return c.metaStore.Add(entry)
	}

	entry.Content = content
	entry.ContentSet = true
	if err := c.metaStore.Add(entry); err != nil {
		return err
	}
	c.memCache.Add(entry)
	return nil
}
