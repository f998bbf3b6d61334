package types

import "time"

// CacheEntry is the persisted unit of the on-disk chunk cache: one file's
// chunk set plus the metadata needed to validate and reuse it. Entries are
// created on store, read-only on retrieve, and removed on invalidate. At
// most one entry exists per file path; storing again overwrites it.
type CacheEntry struct {
	FilePath      string         `json:"file_path"`
	ContentHash   string         `json:"file_hash"`
	Chunks        []Chunk        `json:"chunks"`
	Timestamp     time.Time      `json:"timestamp"`
	Language      string         `json:"language,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SchemaVersion string         `json:"schema_version,omitempty"`
}

// IndexEntry summarizes one cached file inside the cache index, so validity
// checks never have to deserialize the full blob.
type IndexEntry struct {
	FileHash   string    `json:"file_hash"`
	Timestamp  time.Time `json:"timestamp"`
	ChunkCount int       `json:"chunk_count"`
	CacheFile  string    `json:"cache_file"`
}

// CacheIndex maps file paths to their index entries. It is persisted as
// index.json in the cache directory, separately from the blobs.
type CacheIndex map[string]IndexEntry

// CacheExport is the portable dump format produced by cache export and
// consumed by cache import. Index mirrors index.json; Entries holds the full
// entry per path, all chunk fields included.
type CacheExport struct {
	SchemaVersion string                `json:"schema_version,omitempty"`
	Index         map[string]IndexEntry `json:"index"`
	Entries       map[string]CacheEntry `json:"entries"`
}
