// Package memcache provides the in-memory generic cache: three LRU+TTL
// namespaces (AST, chunk, query) behind one API.
//
// Entries expire lazily: an expired entry is dropped the next time it is
// read and counts as a miss. Capacity pressure evicts least recently used
// entries per namespace. InvalidatePattern removes every key containing a
// substring, which callers use to drop all entries for one file path:
//
//	cache.Set(memcache.LevelChunk, path+":chunks", chunks)
//	...
//	cache.InvalidatePattern(memcache.LevelChunk, path)
//
// The on-disk chunk cache is a separate component; this cache holds only
// transient per-process state and is never persisted.
package memcache
