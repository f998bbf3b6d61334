package watch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/Consiliency/treesitter-chunker-sub001/internal/batch"
	"github.com/Consiliency/treesitter-chunker-sub001/internal/cache"
)

// DefaultDebounce is how long events accumulate before a batch is
// flushed.
const DefaultDebounce = 500 * time.Millisecond

// Config holds watcher configuration.
type Config struct {
	// Root is the directory watched recursively. Required.
	Root string

	// Cache, when set, has the affected entries invalidated on each
	// flushed batch.
	Cache *cache.Cache

	// Languages maps extensions to languages; only files with a known
	// extension generate change notifications. Defaults to
	// batch.DefaultLanguages().
	Languages map[string]string

	// Debounce is the event batching interval. Defaults to
	// DefaultDebounce.
	Debounce time.Duration

	// OnChange, when set, receives each flushed batch of changed paths.
	OnChange func(paths []string)

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

// Watcher watches a directory tree and reports debounced file changes.
// Events for one file within a debounce interval collapse into a single
// notification. Each flushed batch first invalidates the affected cache
// entries, then invokes the OnChange callback, so a callback that
// re-enqueues files never races a stale cache entry for the same batch.
type Watcher struct {
	root      string
	cache     *cache.Cache
	languages map[string]string
	debounce  time.Duration
	onChange  func([]string)
	logger    *slog.Logger

	fsw     *fsnotify.Watcher
	matcher gitignore.IgnoreParser

	mu      sync.Mutex
	pending map[string]struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher over cfg.Root. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("checking watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", cfg.Root)
	}

	if cfg.Languages == nil {
		cfg.Languages = batch.DefaultLanguages()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return &Watcher{
		root:      cfg.Root,
		cache:     cfg.Cache,
		languages: cfg.Languages,
		debounce:  cfg.Debounce,
		onChange:  cfg.OnChange,
		logger:    cfg.logger(),
		fsw:       fsw,
		matcher:   gitignore.CompileIgnoreLines(batch.DefaultIgnorePatterns...),
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start registers the directory tree with the underlying watcher and
// launches the event and debounce loops.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && w.matcher.MatchesPath(rel) {
			return fs.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("watching directory failed", "path", path, "error", addErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking watch root: %w", err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	w.logger.Info("watcher started", "root", w.root, "debounce", w.debounce)
	return nil
}

// Close stops both loops and releases the underlying watcher. It is safe
// to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsw.Close()
	})
	return err
}

// eventLoop drains filesystem events into the pending set.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent records one filesystem event, re-watching any directory
// created under the root.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || w.matcher.MatchesPath(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := w.fsw.Add(event.Name); addErr != nil {
				w.logger.Warn("watching new directory failed", "path", event.Name, "error", addErr)
			}
			return
		}
	}

	if _, known := w.languages[strings.ToLower(filepath.Ext(event.Name))]; !known {
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[event.Name] = struct{}{}
		w.mu.Unlock()
	}
}

// debounceLoop flushes the pending set on each tick.
func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending swaps out the pending set, invalidates the affected cache
// entries, and invokes the OnChange callback.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	w.logger.Info("changes detected", "files", len(paths))

	if w.cache != nil {
		for _, path := range paths {
			if _, err := w.cache.Invalidate(path, time.Time{}); err != nil {
				w.logger.Error("invalidating cache entry failed", "path", path, "error", err)
			}
		}
	}

	if w.onChange != nil {
		w.onChange(paths)
	}
}
