package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Consiliency/treesitter-chunker-sub001/internal/cache"
	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

func startWatcher(t *testing.T, cfg Config) (*Watcher, chan []string) {
	t.Helper()

	events := make(chan []string, 16)
	cfg.OnChange = func(paths []string) { events <- paths }
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}

	w, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })
	return w, events
}

// waitFor drains change batches until path shows up or the deadline hits.
func waitFor(t *testing.T, events chan []string, path string) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case paths := <-events:
			for _, p := range paths {
				if p == path {
					return
				}
			}
		case <-deadline:
			t.Fatalf("no change notification for %s", path)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Config{Root: file})
	assert.Error(t, err)
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, Config{Root: dir})

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	waitFor(t, events, path)
}

func TestWatcher_IgnoresUnknownExtensions(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, Config{Root: dir})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case paths := <-events:
		t.Fatalf("unexpected notification: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SkipsIgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))

	_, events := startWatcher(t, Config{Root: dir})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "dep.go"), []byte("x"), 0o644))

	select {
	case paths := <-events:
		t.Fatalf("unexpected notification: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, Config{Root: dir})

	sub := filepath.Join(dir, "svc")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the event loop a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(sub, "handler.go")
	require.NoError(t, os.WriteFile(path, []byte("package svc\n"), 0o644))

	waitFor(t, events, path)
}

func TestWatcher_InvalidatesCache(t *testing.T) {
	dir := t.TempDir()

	store, err := cache.New(cache.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	chunk := types.Chunk{
		FilePath: path, NodeType: types.NodeFunction,
		StartLine: 1, EndLine: 1, Content: "package main",
	}
	chunk.ComputeID()
	require.NoError(t, store.Store(path, []types.Chunk{chunk}, "hash-v1", nil))

	_, events := startWatcher(t, Config{Root: dir, Cache: store})

	require.NoError(t, os.WriteFile(path, []byte("package main // changed\n"), 0o644))
	waitFor(t, events, path)

	// Invalidation happens before the callback fires.
	_, _, err = store.Retrieve(path, "hash-v1")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
}

func TestWatcher_CollapsesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, Config{Root: dir, Debounce: 150 * time.Millisecond})

	path := filepath.Join(dir, "main.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case paths := <-events:
		count := 0
		for _, p := range paths {
			if p == path {
				count++
			}
		}
		assert.Equal(t, 1, count, "one batch entry per file per flush")
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestClose_Idempotent(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestClose_WithoutStart(t *testing.T) {
	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
