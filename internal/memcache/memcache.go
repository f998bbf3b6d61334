package memcache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Level names one key namespace of the multi-level cache.
type Level string

const (
	LevelAST   Level = "ast"
	LevelChunk Level = "chunk"
	LevelQuery Level = "query"
)

const (
	DefaultASTCapacity   = 256
	DefaultChunkCapacity = 1024
	DefaultQueryCapacity = 512
	DefaultTTL           = 5 * time.Minute
)

// Config holds multi-level cache configuration. Zero values select the
// defaults above.
type Config struct {
	ASTCapacity   int
	ChunkCapacity int
	QueryCapacity int
	TTL           time.Duration
}

// entry wraps a cached value with its expiration time
type entry struct {
	value     any
	expiresAt time.Time
}

// levelCache is one namespace: an LRU cache plus its counters, guarded by a
// single coarse mutex.
type levelCache struct {
	mu        sync.Mutex
	cache     *lru.Cache[string, *entry]
	hits      int64
	misses    int64
	evictions int64
}

// LevelStats reports one namespace's current size and lifetime counters.
type LevelStats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// MultiLevel is an in-memory TTL cache partitioned into AST, chunk, and
// query namespaces, each with its own LRU capacity. It is safe for
// concurrent use and never blocks beyond its per-level mutex.
type MultiLevel struct {
	ttl    time.Duration
	levels map[Level]*levelCache
}

// New creates a multi-level cache from the given configuration.
func New(cfg Config) (*MultiLevel, error) {
	if cfg.ASTCapacity <= 0 {
		cfg.ASTCapacity = DefaultASTCapacity
	}
	if cfg.ChunkCapacity <= 0 {
		cfg.ChunkCapacity = DefaultChunkCapacity
	}
	if cfg.QueryCapacity <= 0 {
		cfg.QueryCapacity = DefaultQueryCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	levels := make(map[Level]*levelCache, 3)
	for level, capacity := range map[Level]int{
		LevelAST:   cfg.ASTCapacity,
		LevelChunk: cfg.ChunkCapacity,
		LevelQuery: cfg.QueryCapacity,
	} {
		cache, err := lru.New[string, *entry](capacity)
		if err != nil {
			return nil, fmt.Errorf("creating %s cache: %w", level, err)
		}
		levels[level] = &levelCache{cache: cache}
	}

	return &MultiLevel{ttl: cfg.TTL, levels: levels}, nil
}

// Get returns the live value stored under key in the given level. Expired
// entries are removed on read and count as misses.
func (m *MultiLevel) Get(level Level, key string) (any, bool) {
	lc, ok := m.levels[level]
	if !ok {
		return nil, false
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	e, ok := lc.cache.Get(key)
	if !ok {
		lc.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		lc.cache.Remove(key)
		lc.misses++
		return nil, false
	}

	lc.hits++
	return e.value, true
}

// Set stores value under key with the cache-wide TTL. Capacity pressure
// evicts the least recently used entry.
func (m *MultiLevel) Set(level Level, key string, value any) {
	lc, ok := m.levels[level]
	if !ok {
		return
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.cache.Add(key, &entry{value: value, expiresAt: time.Now().Add(m.ttl)}) {
		lc.evictions++
	}
}

// Delete removes key from the given level and reports whether it was
// present.
func (m *MultiLevel) Delete(level Level, key string) bool {
	lc, ok := m.levels[level]
	if !ok {
		return false
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.cache.Remove(key)
}

// InvalidatePattern removes every key in the level containing the given
// substring and returns the number removed.
func (m *MultiLevel) InvalidatePattern(level Level, substring string) int {
	lc, ok := m.levels[level]
	if !ok {
		return 0
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	removed := 0
	for _, key := range lc.cache.Keys() {
		if strings.Contains(key, substring) {
			lc.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Purge empties one level.
func (m *MultiLevel) Purge(level Level) {
	lc, ok := m.levels[level]
	if !ok {
		return
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.cache.Purge()
}

// PurgeAll empties every level.
func (m *MultiLevel) PurgeAll() {
	for level := range m.levels {
		m.Purge(level)
	}
}

// Stats reports size and lifetime counters per level.
func (m *MultiLevel) Stats() map[Level]LevelStats {
	out := make(map[Level]LevelStats, len(m.levels))
	for level, lc := range m.levels {
		lc.mu.Lock()
		out[level] = LevelStats{
			Size:      lc.cache.Len(),
			Hits:      lc.hits,
			Misses:    lc.misses,
			Evictions: lc.evictions,
		}
		lc.mu.Unlock()
	}
	return out
}
