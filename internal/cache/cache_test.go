package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()

	dir := t.TempDir()
	c, err := New(Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, dir
}

func makeChunks(path string, n int) []types.Chunk {
	chunks := make([]types.Chunk, n)
	for i := range chunks {
		chunks[i] = types.Chunk{
			Language:  "python",
			FilePath:  path,
			NodeType:  types.NodeFunction,
			StartLine: i*10 + 1,
			EndLine:   i*10 + 5,
			Content:   "def f" + string(rune('a'+i)) + "():\n    pass",
		}
		chunks[i].ComputeID()
	}
	return chunks
}

func TestStoreRetrieve_RoundTrip(t *testing.T) {
	c, dir := newTestCache(t)

	chunks := makeChunks("src/app.py", 3)
	meta := map[string]any{"parser": "external"}
	require.NoError(t, c.Store("src/app.py", chunks, "hash-v1", meta))

	got, entry, err := c.Retrieve("src/app.py", "hash-v1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)

	require.NotNil(t, entry)
	assert.Equal(t, "src/app.py", entry.FilePath)
	assert.Equal(t, "hash-v1", entry.ContentHash)
	assert.Equal(t, "python", entry.Language)
	assert.Equal(t, CurrentSchemaVersion, entry.SchemaVersion)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, "external", entry.Metadata["parser"])

	// One blob per path, named by the path digest, plus the index.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	var blobs []string
	for _, f := range files {
		if strings.HasSuffix(f.Name(), blobSuffix) {
			blobs = append(blobs, f.Name())
		}
	}
	require.Len(t, blobs, 1)
	assert.Len(t, strings.TrimSuffix(blobs[0], blobSuffix), 16)

	// Storing again overwrites rather than duplicating.
	require.NoError(t, c.Store("src/app.py", chunks[:1], "hash-v2", nil))
	got, _, err = c.Retrieve("src/app.py", "hash-v2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRetrieve_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	_, _, err := c.Retrieve("never/stored.py", "whatever")
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestRetrieve_HashMismatch(t *testing.T) {
	c, _ := newTestCache(t)

	chunks := makeChunks("src/app.py", 2)
	require.NoError(t, c.Store("src/app.py", chunks, "hash-v1", nil))

	_, _, err := c.Retrieve("src/app.py", "hash-v2")
	assert.ErrorIs(t, err, types.ErrHashMismatch)

	// The entry survives a mismatch; only the hash gate failed.
	got, _, err := c.Retrieve("src/app.py", "hash-v1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)

	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Mismatches)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestRetrieve_EmptyHashSkipsGate(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, c.Store("src/app.py", makeChunks("src/app.py", 1), "hash-v1", nil))

	_, entry, err := c.Retrieve("src/app.py", "")
	require.NoError(t, err)
	assert.Equal(t, "hash-v1", entry.ContentHash)
}

func TestRetrieve_CorruptBlob(t *testing.T) {
	c, dir := newTestCache(t)

	require.NoError(t, c.Store("src/app.py", makeChunks("src/app.py", 2), "hash-v1", nil))

	// Clobber the blob behind the cache's back.
	require.NoError(t, os.WriteFile(filepath.Join(dir, blobName("src/app.py")), []byte("{not json"), 0o644))

	_, _, err := c.Retrieve("src/app.py", "hash-v1")
	assert.ErrorIs(t, err, types.ErrCacheCorruption)

	// The corrupt entry was dropped: the next lookup is a plain miss.
	_, _, err = c.Retrieve("src/app.py", "hash-v1")
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Corruptions)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0, stats.Entries)
}

func TestRetrieve_MissingBlobIsCorruption(t *testing.T) {
	c, dir := newTestCache(t)

	require.NoError(t, c.Store("src/app.py", makeChunks("src/app.py", 1), "hash-v1", nil))
	require.NoError(t, os.Remove(filepath.Join(dir, blobName("src/app.py"))))

	_, _, err := c.Retrieve("src/app.py", "hash-v1")
	assert.ErrorIs(t, err, types.ErrCacheCorruption)
}

// TestReopen_SurvivesRestart stores, closes, and reopens the same
// directory: entries must come back without any reprocessing.
func TestReopen_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first, err := New(Config{Dir: dir})
	require.NoError(t, err)

	chunks := makeChunks("src/app.py", 3)
	require.NoError(t, first.Store("src/app.py", chunks, "hash-v1", nil))
	require.NoError(t, first.Close())

	second, err := New(Config{Dir: dir})
	require.NoError(t, err)
	defer second.Close()

	got, entry, err := second.Retrieve("src/app.py", "hash-v1")
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
	assert.Equal(t, "hash-v1", entry.ContentHash)
}

func TestNew_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte("][junk"), 0o644))

	_, err := New(Config{Dir: dir})
	assert.ErrorIs(t, err, types.ErrIndexPersistence)
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestInvalidate_SinglePath(t *testing.T) {
	c, dir := newTestCache(t)

	require.NoError(t, c.Store("a.py", makeChunks("a.py", 1), "ha", nil))
	require.NoError(t, c.Store("b.py", makeChunks("b.py", 1), "hb", nil))

	n, err := c.Invalidate("a.py", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = c.Retrieve("a.py", "ha")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
	_, _, err = c.Retrieve("b.py", "hb")
	assert.NoError(t, err)

	// The blob file is gone too.
	_, statErr := os.Stat(filepath.Join(dir, blobName("a.py")))
	assert.True(t, os.IsNotExist(statErr))

	// Invalidating an absent path removes nothing.
	n, err = c.Invalidate("a.py", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInvalidate_OlderThan(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, c.Store("old.py", makeChunks("old.py", 1), "ho", nil))
	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Store("new.py", makeChunks("new.py", 1), "hn", nil))

	n, err := c.Invalidate("", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = c.Retrieve("old.py", "ho")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
	_, _, err = c.Retrieve("new.py", "hn")
	assert.NoError(t, err)

	// A far-future cutoff removes every remaining entry regardless of path.
	n, err = c.Invalidate("", time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestInvalidate_AllByDefault(t *testing.T) {
	c, dir := newTestCache(t)

	require.NoError(t, c.Store("a.py", makeChunks("a.py", 1), "ha", nil))
	require.NoError(t, c.Store("b.py", makeChunks("b.py", 1), "hb", nil))
	require.NoError(t, c.Store("c.py", makeChunks("c.py", 1), "hc", nil))

	n, err := c.Invalidate("", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, f := range files {
		assert.False(t, strings.HasSuffix(f.Name(), blobSuffix), "blob %s left behind", f.Name())
	}
}

func TestStatistics(t *testing.T) {
	c, _ := newTestCache(t)

	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 0.0, stats.HitRate)

	require.NoError(t, c.Store("a.py", makeChunks("a.py", 2), "ha", nil))

	_, _, _ = c.Retrieve("a.py", "ha")      // hit
	_, _, _ = c.Retrieve("missing.py", "x") // miss
	_, _, _ = c.Retrieve("a.py", "stale")   // mismatch

	stats, err = c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.TotalBytes, int64(0))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Mismatches)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 1e-9)
}

func TestExportImport_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)

	chunksA := makeChunks("a.py", 2)
	chunksB := makeChunks("b.py", 3)
	require.NoError(t, c.Store("a.py", chunksA, "ha", map[string]any{"k": "v"}))
	require.NoError(t, c.Store("b.py", chunksB, "hb", nil))

	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, c.Export(dumpPath))

	// Import into a fresh cache that has its own prior state.
	target, _ := newTestCache(t)
	require.NoError(t, target.Store("stale.py", makeChunks("stale.py", 1), "hs", nil))

	require.NoError(t, target.Import(dumpPath))

	// Prior state is gone: import is replace, not merge.
	_, _, err := target.Retrieve("stale.py", "hs")
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	got, entry, err := target.Retrieve("a.py", "ha")
	require.NoError(t, err)
	assert.Equal(t, chunksA, got)
	assert.Equal(t, "v", entry.Metadata["k"])

	got, _, err = target.Retrieve("b.py", "hb")
	require.NoError(t, err)
	assert.Equal(t, chunksB, got)

	stats, err := target.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestImport_BadFormat(t *testing.T) {
	c, _ := newTestCache(t)

	badPath := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("definitely not json"), 0o644))
	assert.ErrorIs(t, c.Import(badPath), types.ErrImportFormat)

	emptyPath := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, []byte("{}"), 0o644))
	assert.ErrorIs(t, c.Import(emptyPath), types.ErrImportFormat)

	assert.Error(t, c.Import(filepath.Join(t.TempDir(), "missing.json")))
}

func TestImport_IncompatibleSchema(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.Store("keep.py", makeChunks("keep.py", 1), "hk", nil))

	dump := types.CacheExport{
		SchemaVersion: "2.0.0",
		Index:         map[string]types.IndexEntry{},
		Entries:       map[string]types.CacheEntry{},
	}
	data, err := json.Marshal(dump)
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "future.json")
	require.NoError(t, os.WriteFile(dumpPath, data, 0o644))

	assert.ErrorIs(t, c.Import(dumpPath), types.ErrUnsupportedSchema)

	// Rejected before touching existing state.
	_, _, err = c.Retrieve("keep.py", "hk")
	assert.NoError(t, err)
}

// TestImport_IndexEntriesMismatch feeds a dump whose index lists files the
// entries map does not carry. Accepting it would wipe the cache and then
// import nothing.
func TestImport_IndexEntriesMismatch(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.Store("keep.py", makeChunks("keep.py", 1), "hk", nil))

	dump := types.CacheExport{
		SchemaVersion: CurrentSchemaVersion,
		Index: map[string]types.IndexEntry{
			"a.py": {FileHash: "ha", ChunkCount: 1, CacheFile: "orphan.blob"},
		},
	}
	data, err := json.Marshal(dump)
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "lopsided.json")
	require.NoError(t, os.WriteFile(dumpPath, data, 0o644))

	assert.ErrorIs(t, c.Import(dumpPath), types.ErrImportFormat)

	// Rejected before touching existing state.
	_, _, err = c.Retrieve("keep.py", "hk")
	assert.NoError(t, err)
}

func TestImport_RequiresSchemaVersion(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.Store("keep.py", makeChunks("keep.py", 1), "hk", nil))

	chunks := makeChunks("a.py", 1)
	dump := types.CacheExport{
		Index: map[string]types.IndexEntry{
			"a.py": {FileHash: "ha", ChunkCount: 1, CacheFile: "a.blob"},
		},
		Entries: map[string]types.CacheEntry{
			"a.py": {FilePath: "a.py", ContentHash: "ha", Chunks: chunks},
		},
	}
	data, err := json.Marshal(dump)
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "unversioned.json")
	require.NoError(t, os.WriteFile(dumpPath, data, 0o644))

	assert.ErrorIs(t, c.Import(dumpPath), types.ErrImportFormat)

	_, _, err = c.Retrieve("keep.py", "hk")
	assert.NoError(t, err)
}

func TestExport_SkipsCorruptEntries(t *testing.T) {
	c, dir := newTestCache(t)

	require.NoError(t, c.Store("good.py", makeChunks("good.py", 1), "hg", nil))
	require.NoError(t, c.Store("bad.py", makeChunks("bad.py", 1), "hb", nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, blobName("bad.py")), []byte("junk"), 0o644))

	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, c.Export(dumpPath))

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	var dump types.CacheExport
	require.NoError(t, json.Unmarshal(data, &dump))

	assert.Contains(t, dump.Entries, "good.py")
	assert.NotContains(t, dump.Entries, "bad.py")
	assert.Equal(t, CurrentSchemaVersion, dump.SchemaVersion)
	stats, err := c.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Corruptions)
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Config{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, c.Store("a.py", makeChunks("a.py", 1), "ha", nil))
	dumpPath := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, c.Export(dumpPath))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Every operation on a closed cache fails with the same sentinel.
	assert.ErrorIs(t, c.Store("b.py", makeChunks("b.py", 1), "hb", nil), types.ErrCacheClosed)
	_, _, err = c.Retrieve("a.py", "ha")
	assert.ErrorIs(t, err, types.ErrCacheClosed)
	_, err = c.Invalidate("a.py", time.Time{})
	assert.ErrorIs(t, err, types.ErrCacheClosed)
	_, err = c.Statistics()
	assert.ErrorIs(t, err, types.ErrCacheClosed)
	assert.ErrorIs(t, c.Export(filepath.Join(t.TempDir(), "late.json")), types.ErrCacheClosed)
	assert.ErrorIs(t, c.Import(dumpPath), types.ErrCacheClosed)

	// The closed calls touched nothing: a reopen sees the entry intact.
	reopened, err := New(Config{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, _, err := reopened.Retrieve("a.py", "ha")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// TestConcurrentStoreRetrieve hammers one cache from many goroutines with
// stores, gated retrievals, invalidations, and statistics reads. Every
// retrieval lands in exactly one counter, so afterwards the counters must
// sum to the number of retrievals issued.
func TestConcurrentStoreRetrieve(t *testing.T) {
	c, _ := newTestCache(t)

	const (
		goroutines = 16
		rounds     = 25
	)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("src/f%d.py", g%4)
			hash := fmt.Sprintf("h%d", g)
			for j := 0; j < rounds; j++ {
				if err := c.Store(path, makeChunks(path, 2), hash, nil); err != nil {
					t.Error(err)
					return
				}

				// Two retrievals per round: one against the hash this
				// goroutine stores, one against a hash nobody stores.
				for _, h := range []string{hash, "stale"} {
					_, _, err := c.Retrieve(path, h)
					if err != nil &&
						!errors.Is(err, types.ErrCacheMiss) &&
						!errors.Is(err, types.ErrHashMismatch) &&
						!errors.Is(err, types.ErrCacheCorruption) {
						t.Error(err)
						return
					}
				}

				if j%5 == 0 {
					if _, err := c.Invalidate(path, time.Time{}); err != nil {
						t.Error(err)
						return
					}
				}
				if j%3 == 0 {
					if _, err := c.Statistics(); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	stats, err := c.Statistics()
	require.NoError(t, err)
	total := stats.Hits + stats.Misses + stats.Mismatches + stats.Corruptions
	assert.Equal(t, int64(goroutines*rounds*2), total)

	// Only four distinct paths were ever stored.
	assert.LessOrEqual(t, stats.Entries, 4)
}

func TestCheckSchemaCompatible(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{name: "current version", version: CurrentSchemaVersion},
		{name: "same major newer minor", version: "1.9.3"},
		{name: "newer major", version: "2.0.0", wantErr: true},
		{name: "older major", version: "0.9.0", wantErr: true},
		{name: "garbage", version: "not-a-version", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSchemaCompatible(tt.version)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrUnsupportedSchema)
				return
			}
			assert.NoError(t, err)
		})
	}
}
