package index

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

const (
	// DefaultMaxAuditRows bounds the retained audit log.
	DefaultMaxAuditRows = 1000

	// rebuildFraction is the destructive-change share beyond which an
	// incremental update is never cheaper than a rebuild.
	rebuildFraction = 0.5
)

// Audit actions recorded per applied change.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Entry is one indexed chunk: the searchable normalized content plus
// enough location data to report a hit.
type Entry struct {
	Content  string
	NodeType types.NodeType
	FilePath string
	Lines    types.LineRange
}

// AuditRow records one applied index mutation.
type AuditRow struct {
	OldID  string
	NewID  string
	Action string
	Time   time.Time
}

// Result is one search hit.
type Result struct {
	ChunkID  string
	FilePath string
	NodeType types.NodeType
	Lines    types.LineRange
}

// Config holds incremental index configuration.
type Config struct {
	// MaxAuditRows bounds the audit log. Zero selects DefaultMaxAuditRows.
	MaxAuditRows int
}

// Index is a minimal in-memory search structure updated from chunk diffs.
// Search is a linear, case-insensitive substring scan; the production
// query engine lives elsewhere. All state sits behind one coarse mutex.
type Index struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	audit    []AuditRow
	maxAudit int
}

// New creates an empty incremental index.
func New(cfg Config) *Index {
	maxAudit := cfg.MaxAuditRows
	if maxAudit <= 0 {
		maxAudit = DefaultMaxAuditRows
	}
	return &Index{
		entries:  make(map[string]Entry),
		maxAudit: maxAudit,
	}
}

// Apply updates the index for one chunk transition: the old chunk's entry
// is removed when present, the new chunk's entry inserted when present,
// and an audit row appended. Both nil is a no-op.
func (idx *Index) Apply(oldChunk, newChunk *types.Chunk) {
	if oldChunk == nil && newChunk == nil {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.applyLocked(oldChunk, newChunk)
}

// ApplyDiff applies every change in the diff, in diff order, and returns
// the number of changes applied.
func (idx *Index) ApplyDiff(diff *types.ChunkDiff) int {
	if diff == nil {
		return 0
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	applied := 0
	for i := range diff.Changes {
		ch := &diff.Changes[i]
		switch ch.Kind {
		case types.ChangeAdded:
			idx.applyLocked(nil, ch.NewChunk)
		case types.ChangeDeleted:
			idx.applyLocked(ch.OldChunk, nil)
		case types.ChangeModified, types.ChangeMoved, types.ChangeRenamed:
			idx.applyLocked(ch.OldChunk, ch.NewChunk)
		default:
			continue
		}
		applied++
	}
	return applied
}

// applyLocked performs one transition. The caller must hold the mutex.
func (idx *Index) applyLocked(oldChunk, newChunk *types.Chunk) {
	row := AuditRow{Time: time.Now()}

	if oldChunk != nil {
		delete(idx.entries, oldChunk.ID)
		row.OldID = oldChunk.ID
	}
	if newChunk != nil {
		idx.entries[newChunk.ID] = Entry{
			Content:  strings.ToLower(newChunk.Content),
			NodeType: newChunk.NodeType,
			FilePath: newChunk.FilePath,
			Lines:    newChunk.Lines(),
		}
		row.NewID = newChunk.ID
	}

	switch {
	case oldChunk == nil:
		row.Action = ActionAdd
	case newChunk == nil:
		row.Action = ActionDelete
	default:
		row.Action = ActionUpdate
	}

	idx.audit = append(idx.audit, row)
	if len(idx.audit) > idx.maxAudit {
		idx.audit = idx.audit[len(idx.audit)-idx.maxAudit:]
	}
}

// UpdateCost estimates, in [0, 1], how disruptive applying the diff
// incrementally would be relative to the current index size. The cost is
// len(changes) / max(1, size) capped at 1, and is forced to 1 when added
// plus deleted changes exceed half the index, signaling that a full
// rebuild is the cheaper path.
func (idx *Index) UpdateCost(diff *types.ChunkDiff) float64 {
	if diff == nil {
		return 0
	}

	idx.mu.RLock()
	size := len(idx.entries)
	idx.mu.RUnlock()

	destructive := 0
	for i := range diff.Changes {
		switch diff.Changes[i].Kind {
		case types.ChangeAdded, types.ChangeDeleted:
			destructive++
		}
	}
	if float64(destructive) > rebuildFraction*float64(size) {
		return 1.0
	}

	denom := size
	if denom < 1 {
		denom = 1
	}
	cost := float64(len(diff.Changes)) / float64(denom)
	if cost > 1 {
		return 1.0
	}
	return cost
}

// Search scans the index for entries whose content contains the query,
// case-insensitively, and returns hits sorted by file path then start
// line.
func (idx *Index) Search(query string) []Result {
	needle := strings.ToLower(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []Result
	for id, e := range idx.entries {
		if !strings.Contains(e.Content, needle) {
			continue
		}
		results = append(results, Result{
			ChunkID:  id,
			FilePath: e.FilePath,
			NodeType: e.NodeType,
			Lines:    e.Lines,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		if results[i].Lines.Start != results[j].Lines.Start {
			return results[i].Lines.Start < results[j].Lines.Start
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// AuditLog returns a copy of the retained audit rows, oldest first.
func (idx *Index) AuditLog() []AuditRow {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]AuditRow, len(idx.audit))
	copy(out, idx.audit)
	return out
}

// Rebuild replaces the whole index with the given chunk set and clears the
// audit log. Chunks without IDs are skipped.
func (idx *Index) Rebuild(chunks []types.Chunk) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]Entry, len(chunks))
	idx.audit = nil
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			continue
		}
		idx.entries[c.ID] = Entry{
			Content:  strings.ToLower(c.Content),
			NodeType: c.NodeType,
			FilePath: c.FilePath,
			Lines:    c.Lines(),
		}
	}
	return len(idx.entries)
}
