// Package extractcache is an embeddable cache that guarantees a
// content-extraction function runs at most once per distinct file content,
// across process lifetimes. Callers supply a local file path and an
// Extractor; the cache hashes the file, consults an in-memory LRU and a
// persistent metadata store (embedded SQLite or remote Redis) before
// falling back to the extractor, and persists the result so that future
// requests — in this process or a later one — skip re-extraction for
// unchanged content.
//
// Construct a Cache with New, call Initialize once, and Close when done:
//
//	c, err := extractcache.New(cfg)
//	if err != nil { ... }
//	if err := c.Initialize(); err != nil { ... }
//	defer c.Close()
//
//	content, err := c.GetContent(ctx, "/path/to/file.pdf", myExtractor)
package extractcache
