package batch

import (
	"bufio"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/Consiliency/treesitter-chunker-sub001/internal/cache"
	"github.com/Consiliency/treesitter-chunker-sub001/internal/detect"
	"github.com/Consiliency/treesitter-chunker-sub001/internal/monitor"
	"github.com/Consiliency/treesitter-chunker-sub001/internal/pool"
	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

const (
	// DefaultWorkers bounds concurrent file processing in a parallel batch.
	DefaultWorkers = 4

	// DefaultBatchSize is how many tasks one ProcessBatch call dispatches
	// when the caller passes a non-positive size.
	DefaultBatchSize = 16
)

// DefaultIgnorePatterns are directories and files skipped during
// directory walks, on top of whatever the directory's own .gitignore
// excludes.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	".idea",
	".vscode",
	".DS_Store",
}

// Hasher computes content hashes for cache keying.
type Hasher interface {
	HashFile(path string) (string, error)
}

// Config holds batch processor configuration.
type Config struct {
	// Workers bounds parallel file processing. Defaults to DefaultWorkers.
	Workers int

	// MaxQueue caps the pending queue; zero means unbounded.
	MaxQueue int

	// Chunker turns files into chunk sets. Required.
	Chunker types.Chunker

	// Pool supplies parser handles per language. Optional.
	Pool *pool.Pool

	// Cache persists chunk sets after processing. Optional.
	Cache *cache.Cache

	// Hasher keys cache entries by content hash. Defaults to the change
	// detector's hasher when a Cache is configured.
	Hasher Hasher

	// Monitor records per-file and per-batch metrics. Optional.
	Monitor *monitor.Monitor

	// Logger is the structured logger. When nil, a discard logger is used.
	Logger *slog.Logger

	// Languages maps lowercase file extensions (with dot) to language
	// names. Defaults to DefaultLanguages().
	Languages map[string]string
}

// logger returns the configured logger, or a discard logger if nil.
func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultLanguages returns the built-in extension to language mapping.
func DefaultLanguages() map[string]string {
	return map[string]string{
		".go":   "go",
		".py":   "python",
		".js":   "javascript",
		".jsx":  "javascript",
		".ts":   "typescript",
		".tsx":  "typescript",
		".rs":   "rust",
		".java": "java",
		".c":    "c",
		".h":    "c",
		".cpp":  "cpp",
		".cc":   "cpp",
		".hpp":  "cpp",
		".rb":   "ruby",
	}
}

// Processor schedules files through a priority queue and processes them
// in bounded parallel batches. A processor tracks one session: each path
// is processed at most once until ResetProcessed, failures are contained
// per file, and cancellation is cooperative between dispatches.
type Processor struct {
	sessionID string
	workers   int
	maxQueue  int
	chunker   types.Chunker
	pool      *pool.Pool
	cache     *cache.Cache
	hasher    Hasher
	monitor   *monitor.Monitor
	logger    *slog.Logger
	languages map[string]string

	mu        sync.Mutex
	queue     taskQueue
	queued    map[string]struct{}
	processed map[string]struct{}
	failures  map[string]string
	seq       uint64

	cancelled atomic.Bool
}

// New creates a Processor for one processing session.
func New(cfg Config) (*Processor, error) {
	if cfg.Chunker == nil {
		return nil, errors.New("chunker is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Languages == nil {
		cfg.Languages = DefaultLanguages()
	}
	if cfg.Hasher == nil {
		cfg.Hasher = detect.New()
	}

	return &Processor{
		sessionID: uuid.NewString(),
		workers:   cfg.Workers,
		maxQueue:  cfg.MaxQueue,
		chunker:   cfg.Chunker,
		pool:      cfg.Pool,
		cache:     cfg.Cache,
		hasher:    cfg.Hasher,
		monitor:   cfg.Monitor,
		logger:    cfg.logger(),
		languages: cfg.Languages,
		queued:    make(map[string]struct{}),
		processed: make(map[string]struct{}),
		failures:  make(map[string]string),
	}, nil
}

// SessionID returns the processor's session identifier.
func (p *Processor) SessionID() string {
	return p.sessionID
}

// AddFile enqueues a file at the given priority. It returns false without
// enqueuing when the path is empty, already queued, already processed this
// session, or the queue is at capacity.
func (p *Processor) AddFile(path string, priority int) bool {
	if path == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.queued[path]; ok {
		return false
	}
	if _, ok := p.processed[path]; ok {
		return false
	}
	if p.maxQueue > 0 && p.queue.Len() >= p.maxQueue {
		return false
	}

	p.seq++
	heap.Push(&p.queue, &FileTask{
		FilePath:    path,
		Priority:    priority,
		EnqueueTime: time.Now(),
		seq:         p.seq,
	})
	p.queued[path] = struct{}{}
	return true
}

// ProcessBatch dispatches up to batchSize queued tasks, highest priority
// first, and returns the chunk sets of the files that processed cleanly
// keyed by path. Each task is marked processed at dispatch. When parallel
// is set, dispatch runs through a worker-bounded errgroup; otherwise tasks
// run in order on the calling goroutine.
//
// Cancellation is checked before every dispatch, via both Cancel and the
// context; in-flight work is never interrupted and undispatched tasks stay
// queued. Per-file failures are logged, counted, and recorded for Errors
// rather than returned. The error return carries infrastructure failures
// only, of which cache index persistence is the one source.
func (p *Processor) ProcessBatch(ctx context.Context, batchSize int, parallel bool) (map[string][]types.Chunk, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var op *monitor.Operation
	if p.monitor != nil {
		op = p.monitor.StartOperation("batch.process")
		defer p.monitor.EndOperation(op)
	}

	results := make(map[string][]types.Chunk)
	var resMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	semaphore := make(chan struct{}, p.workers)

	dispatched := 0
	for dispatched < batchSize {
		if p.cancelled.Load() {
			p.logger.Info("batch cancelled",
				"session_id", p.sessionID, "dispatched", dispatched)
			break
		}
		if gctx.Err() != nil {
			break
		}

		task := p.nextTask()
		if task == nil {
			break
		}
		dispatched++

		if !parallel {
			chunks, err := p.processFile(ctx, task)
			if err != nil {
				if errors.Is(err, types.ErrIndexPersistence) {
					return results, err
				}
				p.recordFailure(task.FilePath, err)
				continue
			}
			results[task.FilePath] = chunks
			continue
		}

		g.Go(func() error {
			select {
			case semaphore <- struct{}{}:
			case <-gctx.Done():
				p.recordFailure(task.FilePath, gctx.Err())
				return nil
			}
			defer func() { <-semaphore }()

			chunks, err := p.processFile(gctx, task)
			if err != nil {
				if errors.Is(err, types.ErrIndexPersistence) {
					return err
				}
				p.recordFailure(task.FilePath, err)
				return nil
			}

			resMu.Lock()
			results[task.FilePath] = chunks
			resMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	p.logger.Debug("batch processed",
		"session_id", p.sessionID, "dispatched", dispatched, "succeeded", len(results))
	return results, nil
}

// ProcessDirectory walks dir, enqueues every matching file, and drains the
// queue with repeated parallel batches. Files are filtered by the ignore
// patterns (DefaultIgnorePatterns plus the directory's .gitignore), the
// optional glob pattern against the base name, and the known language
// extensions. priorityFn, when non-nil, assigns each file's queue
// priority.
func (p *Processor) ProcessDirectory(ctx context.Context, dir, pattern string, recursive bool, priorityFn func(path string) int) (map[string][]types.Chunk, error) {
	matcher := gitignore.CompileIgnoreLines(p.ignorePatterns(dir)...)

	enqueued := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if path == dir {
				return nil
			}
			if !recursive || matcher.MatchesPath(rel) {
				return fs.SkipDir
			}
			return nil
		}

		if matcher.MatchesPath(rel) {
			return nil
		}
		if pattern != "" {
			ok, matchErr := filepath.Match(pattern, d.Name())
			if matchErr != nil {
				return fmt.Errorf("invalid pattern %q: %w", pattern, matchErr)
			}
			if !ok {
				return nil
			}
		}
		if _, known := p.languages[strings.ToLower(filepath.Ext(path))]; !known {
			return nil
		}

		priority := 0
		if priorityFn != nil {
			priority = priorityFn(path)
		}
		if p.AddFile(path, priority) {
			enqueued++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	p.logger.Info("directory walk complete",
		"session_id", p.sessionID, "dir", dir, "enqueued", enqueued)

	results := make(map[string][]types.Chunk)
	for p.PendingCount() > 0 && !p.cancelled.Load() && ctx.Err() == nil {
		batch, batchErr := p.ProcessBatch(ctx, DefaultBatchSize, true)
		for path, chunks := range batch {
			results[path] = chunks
		}
		if batchErr != nil {
			return results, batchErr
		}
	}
	return results, nil
}

// PendingCount returns how many tasks are queued.
func (p *Processor) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// ClearQueue drops all queued tasks and returns how many were dropped.
// Processed bookkeeping is untouched.
func (p *Processor) ClearQueue() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.queue.Len()
	p.queue = nil
	p.queued = make(map[string]struct{})
	return n
}

// ResetProcessed forgets which paths were processed this session, allowing
// them to be enqueued again. It returns how many were forgotten.
func (p *Processor) ResetProcessed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.processed)
	p.processed = make(map[string]struct{})
	return n
}

// Cancel requests cooperative cancellation. Dispatch of new tasks stops;
// in-flight tasks run to completion.
func (p *Processor) Cancel() {
	p.cancelled.Store(true)
	p.logger.Info("cancellation requested", "session_id", p.sessionID)
}

// Cancelled reports whether Cancel has been called.
func (p *Processor) Cancelled() bool {
	return p.cancelled.Load()
}

// Errors returns a snapshot of per-file failure messages keyed by path.
func (p *Processor) Errors() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]string, len(p.failures))
	for path, msg := range p.failures {
		out[path] = msg
	}
	return out
}

// nextTask pops the highest-priority task and marks it processed.
func (p *Processor) nextTask() *FileTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Len() == 0 {
		return nil
	}
	task := heap.Pop(&p.queue).(*FileTask)
	delete(p.queued, task.FilePath)
	p.processed[task.FilePath] = struct{}{}
	return task
}

// processFile runs one file through the pipeline: resolve language,
// acquire a parser, chunk, record metrics, and optionally cache the
// result keyed by content hash.
func (p *Processor) processFile(ctx context.Context, task *FileTask) ([]types.Chunk, error) {
	var op *monitor.Operation
	if p.monitor != nil {
		op = p.monitor.StartOperation("file.process")
		defer p.monitor.EndOperation(op)
	}

	ext := strings.ToLower(filepath.Ext(task.FilePath))
	language, ok := p.languages[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no language mapping for %q", types.ErrProcessing, ext)
	}

	info, err := os.Stat(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProcessing, err)
	}
	p.recordMetric("file.size_bytes", float64(info.Size()))

	if p.pool != nil {
		resourceType := pool.ParserResourceType(language)
		handle, acqErr := p.pool.Acquire(resourceType)
		if acqErr != nil {
			return nil, fmt.Errorf("%w: acquiring parser: %w", types.ErrProcessing, acqErr)
		}
		defer p.pool.Release(resourceType, handle)
	}

	chunks, err := p.chunker.ChunkFile(ctx, task.FilePath, language)
	if err != nil {
		return nil, fmt.Errorf("%w: chunking %s: %w", types.ErrProcessing, task.FilePath, err)
	}
	p.recordMetric("file.chunk_count", float64(len(chunks)))

	if p.cache != nil {
		hash, hashErr := p.hasher.HashFile(task.FilePath)
		if hashErr != nil {
			return nil, fmt.Errorf("%w: hashing %s: %w", types.ErrProcessing, task.FilePath, hashErr)
		}
		if storeErr := p.cache.Store(task.FilePath, chunks, hash, nil); storeErr != nil {
			return nil, storeErr
		}
	}

	return chunks, nil
}

// recordFailure logs and records one per-file failure.
func (p *Processor) recordFailure(path string, err error) {
	p.logger.Warn("file processing failed",
		"session_id", p.sessionID, "path", path, "error", err)

	p.mu.Lock()
	p.failures[path] = err.Error()
	p.mu.Unlock()

	p.recordMetric("files.failed", 1)
}

func (p *Processor) recordMetric(name string, value float64) {
	if p.monitor != nil {
		p.monitor.RecordMetric(name, value)
	}
}

// ignorePatterns combines DefaultIgnorePatterns with the directory's
// .gitignore, if one exists.
func (p *Processor) ignorePatterns(dir string) []string {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+8)
	patterns = append(patterns, DefaultIgnorePatterns...)

	lines, err := readGitignoreLines(filepath.Join(dir, ".gitignore"))
	if err == nil {
		patterns = append(patterns, lines...)
	}
	return patterns
}

// readGitignoreLines reads patterns from a .gitignore file, skipping
// blanks and comments.
func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
