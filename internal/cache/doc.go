// Package cache persists chunk sets on disk between runs so unchanged
// files never have to be re-processed.
//
// Each cached file path maps to one JSON blob in the cache directory,
// named by the xxhash64 hex digest of the path, holding the file's chunks
// together with its content hash, timestamp, language, and schema version.
// A single index.json records the path-to-blob mapping and is the source
// of truth for what the cache contains. Both blobs and the index are
// written atomically through a temp file and rename.
//
// Retrieval is hash-gated: an entry is served only while the caller's
// content hash matches the hash the entry was stored under. The three
// ways a retrieval can fail are distinguishable sentinels so callers and
// statistics can tell them apart:
//
//   - types.ErrCacheMiss: the path has never been cached
//   - types.ErrHashMismatch: the file changed since it was cached
//   - types.ErrCacheCorruption: the blob is missing or undecodable
//
// Corruption is self-healing to the extent that the broken entry is
// dropped from the index on detection. None of the three abort anything;
// only types.ErrIndexPersistence, a failure to read or write index.json
// itself, is treated as a hard error.
//
// Blobs carry a semver schema version. Reads accept any version sharing
// the current major; Export and Import move whole caches between
// directories or machines, and Import validates the dump before wiping
// and replacing existing state.
package cache
