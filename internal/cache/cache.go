package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

const (
	indexFileName = "index.json"
	blobSuffix    = ".blob"
)

// Config holds chunk cache configuration.
type Config struct {
	// Dir is the cache directory. Required; created if absent.
	Dir string

	// Logger is the structured logger. When nil, a discard logger is used.
	Logger *slog.Logger
}

// logger returns the configured logger, or a discard logger if nil.
func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stats reports cache contents and retrieval counters. Misses, mismatches,
// and corruptions are tracked separately even though each means "no usable
// entry" to the caller.
type Stats struct {
	Entries     int
	TotalBytes  int64
	Hits        int64
	Misses      int64
	Mismatches  int64
	Corruptions int64
	HitRate     float64
}

// Cache persists chunk sets on disk, one schema-versioned JSON blob per
// file path plus a lightweight index. Retrieval is gated by content hash:
// a stored entry is only usable while the file's hash still matches.
// Corrupt blobs are counted and reported as their sentinel, never a crash;
// only a failure to persist the cache's own index propagates as a hard
// error. All state sits behind one coarse mutex.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu          sync.Mutex
	index       types.CacheIndex
	hits        int64
	misses      int64
	mismatches  int64
	corruptions int64
	closed      bool
}

// New opens the cache at cfg.Dir, creating the directory and loading the
// existing index if one is present.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		dir:    cfg.Dir,
		logger: cfg.logger(),
		index:  make(types.CacheIndex),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// Store persists one file's chunk set under its content hash, overwriting
// any prior entry for the path. The blob is written atomically and the
// index persisted on every store.
func (c *Cache) Store(path string, chunks []types.Chunk, contentHash string, metadata map[string]any) error {
	if path == "" {
		return errors.New("file path is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ErrCacheClosed
	}

	entry := types.CacheEntry{
		FilePath:      path,
		ContentHash:   contentHash,
		Chunks:        chunks,
		Timestamp:     time.Now().UTC(),
		Language:      chunkLanguage(chunks),
		Metadata:      metadata,
		SchemaVersion: CurrentSchemaVersion,
	}

	name := blobName(path)
	if err := c.writeBlob(name, entry); err != nil {
		return err
	}

	c.index[path] = types.IndexEntry{
		FileHash:   contentHash,
		Timestamp:  entry.Timestamp,
		ChunkCount: len(chunks),
		CacheFile:  name,
	}
	return c.persistIndexLocked()
}

// Retrieve returns the cached chunk set for path. When contentHash is
// non-empty it must match the stored hash. The three failure outcomes are
// distinguishable through errors.Is: ErrCacheMiss for an unknown path,
// ErrHashMismatch for a stale entry, and ErrCacheCorruption when the blob
// is missing or undecodable (the entry is dropped from the index in that
// case).
func (c *Cache) Retrieve(path, contentHash string) ([]types.Chunk, *types.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, types.ErrCacheClosed
	}

	idxEntry, ok := c.index[path]
	if !ok {
		c.misses++
		return nil, nil, fmt.Errorf("retrieving %s: %w", path, types.ErrCacheMiss)
	}

	if contentHash != "" && contentHash != idxEntry.FileHash {
		c.mismatches++
		return nil, nil, fmt.Errorf("retrieving %s: %w", path, types.ErrHashMismatch)
	}

	entry, err := c.readBlob(idxEntry.CacheFile)
	if err != nil {
		c.corruptions++
		delete(c.index, path)
		if perr := c.persistIndexLocked(); perr != nil {
			c.logger.Error("persisting index after dropping corrupt entry failed",
				"path", path, "error", perr)
		}
		c.logger.Error("cache entry corrupted",
			"path", path, "cache_file", idxEntry.CacheFile, "error", err)
		return nil, nil, fmt.Errorf("retrieving %s: %w", path, types.ErrCacheCorruption)
	}

	c.hits++
	return entry.Chunks, entry, nil
}

// Invalidate removes cache entries and returns how many were removed.
// A non-empty path removes that entry alone. An empty path with a non-zero
// olderThan removes every entry stored before that time. With neither
// argument set, Invalidate("", time.Time{}) wipes the entire cache.
func (c *Cache) Invalidate(path string, olderThan time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, types.ErrCacheClosed
	}
	return c.invalidateLocked(path, olderThan)
}

// invalidateLocked removes matching entries and their blobs. The caller
// must hold the mutex.
func (c *Cache) invalidateLocked(path string, olderThan time.Time) (int, error) {
	var victims []string
	switch {
	case path != "":
		if _, ok := c.index[path]; ok {
			victims = append(victims, path)
		}
	case !olderThan.IsZero():
		for p, e := range c.index {
			if e.Timestamp.Before(olderThan) {
				victims = append(victims, p)
			}
		}
	default:
		for p := range c.index {
			victims = append(victims, p)
		}
	}

	if len(victims) == 0 {
		return 0, nil
	}

	for _, p := range victims {
		e := c.index[p]
		if err := os.Remove(filepath.Join(c.dir, e.CacheFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("removing cache blob failed", "path", p, "error", err)
		}
		delete(c.index, p)
	}

	c.logger.Info("cache entries invalidated", "removed", len(victims))
	return len(victims), c.persistIndexLocked()
}

// Statistics reports entry count, total bytes across existing blobs, and
// the retrieval counters. The hit rate is hits over all retrievals, with a
// floor of one retrieval.
func (c *Cache) Statistics() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Stats{}, types.ErrCacheClosed
	}

	var total int64
	for _, e := range c.index {
		if info, err := os.Stat(filepath.Join(c.dir, e.CacheFile)); err == nil {
			total += info.Size()
		}
	}

	retrievals := c.hits + c.misses + c.mismatches + c.corruptions
	return Stats{
		Entries:     len(c.index),
		TotalBytes:  total,
		Hits:        c.hits,
		Misses:      c.misses,
		Mismatches:  c.mismatches,
		Corruptions: c.corruptions,
		HitRate:     float64(c.hits) / float64(max(int64(1), retrievals)),
	}, nil
}

// Export writes the full cache contents to path as one portable JSON
// document. Entries whose blobs fail to load are counted as corrupt and
// left out of the dump.
func (c *Cache) Export(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ErrCacheClosed
	}

	dump := types.CacheExport{
		SchemaVersion: CurrentSchemaVersion,
		Index:         make(map[string]types.IndexEntry, len(c.index)),
		Entries:       make(map[string]types.CacheEntry, len(c.index)),
	}
	for p, idxEntry := range c.index {
		entry, err := c.readBlob(idxEntry.CacheFile)
		if err != nil {
			c.corruptions++
			c.logger.Error("skipping corrupt entry during export", "path", p, "error", err)
			continue
		}
		dump.Index[p] = idxEntry
		dump.Entries[p] = *entry
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache export: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("writing cache export: %w", err)
	}

	c.logger.Info("cache exported", "path", path, "entries", len(dump.Entries))
	return nil
}

// Import replaces the entire cache with the contents of a previously
// exported dump. The dump is validated, schema version included, before
// any existing state is touched; the replacement is a wipe plus reload,
// never a merge.
func (c *Cache) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading cache import: %w", err)
	}

	var dump types.CacheExport
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("%w: %w", types.ErrImportFormat, err)
	}
	if dump.Index == nil && dump.Entries == nil {
		return fmt.Errorf("%w: missing index and entries", types.ErrImportFormat)
	}
	if len(dump.Index) != len(dump.Entries) {
		return fmt.Errorf("%w: index lists %d files but %d entries were provided",
			types.ErrImportFormat, len(dump.Index), len(dump.Entries))
	}
	if dump.SchemaVersion == "" {
		return fmt.Errorf("%w: missing schema version", types.ErrImportFormat)
	}
	if err := checkSchemaCompatible(dump.SchemaVersion); err != nil {
		return err
	}
	for p, entry := range dump.Entries {
		if entry.SchemaVersion == "" {
			continue
		}
		if err := checkSchemaCompatible(entry.SchemaVersion); err != nil {
			return fmt.Errorf("entry %s: %w", p, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ErrCacheClosed
	}

	if _, err := c.invalidateLocked("", time.Time{}); err != nil {
		return err
	}

	for p, entry := range dump.Entries {
		entry.FilePath = p
		entry.SchemaVersion = CurrentSchemaVersion

		name := blobName(p)
		if err := c.writeBlob(name, entry); err != nil {
			if perr := c.persistIndexLocked(); perr != nil {
				c.logger.Error("persisting index after failed import", "error", perr)
			}
			return err
		}
		c.index[p] = types.IndexEntry{
			FileHash:   entry.ContentHash,
			Timestamp:  entry.Timestamp,
			ChunkCount: len(entry.Chunks),
			CacheFile:  name,
		}
	}

	c.logger.Info("cache imported", "path", path, "entries", len(dump.Entries))
	return c.persistIndexLocked()
}

// Close persists the index a final time and marks the cache closed. Every
// operation on a closed cache fails with types.ErrCacheClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.persistIndexLocked()
}

// loadIndex reads index.json into memory. A missing file means an empty
// cache; an unreadable or undecodable one breaks the cache's storage
// contract and propagates.
func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(c.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", types.ErrIndexPersistence, indexFileName, err)
	}

	var index types.CacheIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", types.ErrIndexPersistence, indexFileName, err)
	}
	if index != nil {
		c.index = index
	}
	return nil
}

// persistIndexLocked writes index.json atomically. The caller must hold
// the mutex.
func (c *Cache) persistIndexLocked() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", types.ErrIndexPersistence, indexFileName, err)
	}
	if err := atomicWrite(c.indexPath(), data); err != nil {
		return fmt.Errorf("%w: writing %s: %w", types.ErrIndexPersistence, indexFileName, err)
	}
	return nil
}

// readBlob loads and decodes one cache blob, rejecting incompatible schema
// versions.
func (c *Cache) readBlob(name string) (*types.CacheEntry, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}

	var entry types.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding blob: %w", err)
	}
	if entry.SchemaVersion != "" {
		if err := checkSchemaCompatible(entry.SchemaVersion); err != nil {
			return nil, err
		}
	}
	return &entry, nil
}

// writeBlob encodes and atomically writes one cache blob.
func (c *Cache) writeBlob(name string, entry types.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache blob: %w", err)
	}
	if err := atomicWrite(filepath.Join(c.dir, name), data); err != nil {
		return fmt.Errorf("writing cache blob: %w", err)
	}
	return nil
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, indexFileName)
}

// blobName derives the filesystem-safe blob filename for a file path from
// its xxhash64 hex digest.
func blobName(path string) string {
	return fmt.Sprintf("%016x%s", xxhash.Sum64String(path), blobSuffix)
}

// chunkLanguage picks the entry language from the first chunk carrying one.
func chunkLanguage(chunks []types.Chunk) string {
	for i := range chunks {
		if chunks[i].Language != "" {
			return chunks[i].Language
		}
	}
	return ""
}

// atomicWrite writes data through a temp file and rename so readers never
// observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
