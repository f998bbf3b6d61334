package diff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/Consiliency/treesitter-chunker-sub001/internal/monitor"
	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

const (
	// DefaultMoveThreshold is the minimum content similarity at which a
	// deleted and an added chunk of the same node type are reconciled into
	// one move.
	DefaultMoveThreshold = 0.85

	movedConfidence    = 0.95
	modifiedConfidence = 0.9
)

// Detector is the change-detection capability the engine consumes: changed
// regions for modified pairs and similarity scores for move reconciliation.
// *detect.Detector satisfies it.
type Detector interface {
	ChangedRegions(oldText, newText string) []types.LineRange
	Similarity(a, b string) float64
}

// Config holds diff engine configuration.
type Config struct {
	// Chunker is the external structural-parsing collaborator. Required.
	Chunker types.Chunker

	// Detector supplies changed-region and similarity computation. Required.
	Detector Detector

	// MoveThreshold overrides DefaultMoveThreshold when positive.
	MoveThreshold float64

	// Monitor receives timing metrics when set.
	Monitor *monitor.Monitor

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

// Engine computes chunk diffs between an old chunk set and new source text,
// and applies them. The diff is a documented greedy heuristic, not a
// globally minimal one.
type Engine struct {
	chunker       types.Chunker
	detector      Detector
	moveThreshold float64
	monitor       *monitor.Monitor
	logger        *slog.Logger
}

// New creates a diff engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Chunker == nil {
		return nil, errors.New("chunker is required")
	}
	if cfg.Detector == nil {
		return nil, errors.New("detector is required")
	}

	threshold := cfg.MoveThreshold
	if threshold <= 0 {
		threshold = DefaultMoveThreshold
	}

	return &Engine{
		chunker:       cfg.Chunker,
		detector:      cfg.Detector,
		moveThreshold: threshold,
		monitor:       cfg.Monitor,
		logger:        cfg.logger(),
	}, nil
}

// ComputeDiff chunks newText through the collaborator and partitions the
// old and new chunk sets into added, deleted, modified, moved, and
// unchanged. Chunks are matched by deterministic ID; a deleted and an added
// chunk of the same node type whose contents score at least the move
// threshold, and whose locations differ, become a single moved change.
func (e *Engine) ComputeDiff(ctx context.Context, oldChunks []types.Chunk, newText, language string) (*types.ChunkDiff, error) {
	if e.monitor != nil {
		op := e.monitor.StartOperation("diff.compute")
		defer e.monitor.EndOperation(op)
	}

	parsed, err := e.chunker.ChunkText(ctx, newText, language)
	if err != nil {
		return nil, fmt.Errorf("chunking new text: %w", err)
	}

	before := ensureIDs(oldChunks)
	after := ensureIDs(parsed)

	beforeByID := chunksByID(before)
	afterByID := chunksByID(after)

	var (
		unchanged []types.Chunk
		modified  []types.ModifiedPair
		added     []types.Chunk
		deleted   []types.Chunk
	)

	for _, c := range after {
		oldC, ok := beforeByID[c.ID]
		switch {
		case !ok:
			added = append(added, c)
		case oldC.Content == c.Content:
			unchanged = append(unchanged, c)
		default:
			modified = append(modified, types.ModifiedPair{Old: oldC, New: c})
		}
	}
	for _, c := range before {
		if _, ok := afterByID[c.ID]; !ok {
			deleted = append(deleted, c)
		}
	}

	moved, added, deleted := e.detectMoves(added, deleted)

	changes := make([]types.ChunkChange, 0, len(added)+len(modified)+len(moved)+len(deleted))
	for _, c := range added {
		changes = append(changes, types.ChunkChange{
			ChunkID:    c.ID,
			Kind:       types.ChangeAdded,
			NewChunk:   chunkPtr(c),
			Confidence: 1.0,
		})
	}
	for _, pair := range modified {
		changes = append(changes, types.ChunkChange{
			ChunkID:      pair.New.ID,
			Kind:         types.ChangeModified,
			OldChunk:     chunkPtr(pair.Old),
			NewChunk:     chunkPtr(pair.New),
			ChangedLines: e.detector.ChangedRegions(pair.Old.Content, pair.New.Content),
			Confidence:   modifiedConfidence,
		})
	}
	changes = append(changes, moved...)
	for _, c := range deleted {
		changes = append(changes, types.ChunkChange{
			ChunkID:    c.ID,
			Kind:       types.ChangeDeleted,
			OldChunk:   chunkPtr(c),
			Confidence: 1.0,
		})
	}

	diff := &types.ChunkDiff{
		Changes:   changes,
		Added:     added,
		Deleted:   deleted,
		Modified:  modified,
		Unchanged: unchanged,
		Summary: map[string]int{
			"added":     len(added),
			"deleted":   len(deleted),
			"modified":  len(modified),
			"moved":     len(moved),
			"unchanged": len(unchanged),
			"total_old": len(before),
			"total_new": len(after),
		},
	}

	e.logger.Debug("diff computed",
		"language", language,
		"added", len(added),
		"deleted", len(deleted),
		"modified", len(modified),
		"moved", len(moved),
		"unchanged", len(unchanged))

	return diff, nil
}

// detectMoves greedily reconciles deleted and added chunks into moves. Each
// deleted chunk is scored against every unmatched added chunk of the same
// node type; the best match at or above the threshold whose location
// differs wins, one to one.
func (e *Engine) detectMoves(added, deleted []types.Chunk) (moved []types.ChunkChange, remainingAdded, remainingDeleted []types.Chunk) {
	usedAdded := make(map[int]bool)

	for _, oldC := range deleted {
		bestIdx := -1
		bestScore := 0.0
		for i, newC := range added {
			if usedAdded[i] || newC.NodeType != oldC.NodeType {
				continue
			}
			if !locationDiffers(oldC, newC) {
				continue
			}
			score := e.detector.Similarity(oldC.Content, newC.Content)
			if score >= e.moveThreshold && score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx < 0 {
			remainingDeleted = append(remainingDeleted, oldC)
			continue
		}

		usedAdded[bestIdx] = true
		moved = append(moved, types.ChunkChange{
			ChunkID:    added[bestIdx].ID,
			Kind:       types.ChangeMoved,
			OldChunk:   chunkPtr(oldC),
			NewChunk:   chunkPtr(added[bestIdx]),
			Confidence: movedConfidence,
		})
	}

	for i, c := range added {
		if !usedAdded[i] {
			remainingAdded = append(remainingAdded, c)
		}
	}
	return moved, remainingAdded, remainingDeleted
}

// UpdateChunks applies a diff onto an old chunk set: removed IDs are
// deleted, added, modified, and moved chunks are upserted under their new
// IDs, and unchanged chunks are re-added. The result is sorted by file path
// then start line.
func (e *Engine) UpdateChunks(oldChunks []types.Chunk, diff *types.ChunkDiff) []types.Chunk {
	result := make(map[string]types.Chunk, len(oldChunks))
	for _, c := range ensureIDs(oldChunks) {
		result[c.ID] = c
	}

	for _, ch := range diff.Changes {
		switch ch.Kind {
		case types.ChangeDeleted:
			if ch.OldChunk != nil {
				delete(result, ch.OldChunk.ID)
			}
		case types.ChangeAdded:
			if ch.NewChunk != nil {
				result[ch.NewChunk.ID] = *ch.NewChunk
			}
		case types.ChangeModified, types.ChangeMoved, types.ChangeRenamed:
			if ch.OldChunk != nil {
				delete(result, ch.OldChunk.ID)
			}
			if ch.NewChunk != nil {
				result[ch.NewChunk.ID] = *ch.NewChunk
			}
		}
	}

	for _, c := range diff.Unchanged {
		result[c.ID] = c
	}

	return sortedChunks(result)
}

// MergeIncrementalResults merges a partial reprocessing run into a prior
// full chunk set: every incremental chunk is kept, plus any full chunk
// whose line span does not intersect a changed region. Used when only a
// sub-region of a file was reparsed.
func (e *Engine) MergeIncrementalResults(full, incremental []types.Chunk, changedRegions []types.LineRange) []types.Chunk {
	result := make(map[string]types.Chunk, len(full))

	for _, c := range ensureIDs(incremental) {
		result[c.ID] = c
	}

	for _, c := range ensureIDs(full) {
		if _, ok := result[c.ID]; ok {
			continue
		}
		span := c.Lines()
		intersects := false
		for _, r := range changedRegions {
			if span.Overlap(r) > 0 {
				intersects = true
				break
			}
		}
		if !intersects {
			result[c.ID] = c
		}
	}

	return sortedChunks(result)
}

// ensureIDs returns a copy of chunks with deterministic IDs computed for
// any chunk missing one. Collaborator-supplied IDs are honored.
func ensureIDs(chunks []types.Chunk) []types.Chunk {
	out := make([]types.Chunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		if out[i].ID == "" {
			out[i].ComputeID()
		}
	}
	return out
}

func chunksByID(chunks []types.Chunk) map[string]types.Chunk {
	m := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		m[c.ID] = c
	}
	return m
}

func locationDiffers(a, b types.Chunk) bool {
	return a.FilePath != b.FilePath || a.StartLine != b.StartLine
}

func chunkPtr(c types.Chunk) *types.Chunk {
	return &c
}

func sortedChunks(m map[string]types.Chunk) []types.Chunk {
	out := make([]types.Chunk, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].ID < out[j].ID
	})
	return out
}
