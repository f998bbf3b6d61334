// Package diff computes and applies chunk-level diffs between two versions
// of a source file.
//
// # Algorithm
//
// ComputeDiff invokes the external chunking collaborator on the new text,
// then partitions the old and new chunk sets by deterministic chunk ID:
//
//   - IDs present in both sets with byte-identical content are unchanged.
//   - IDs present in both sets with differing content are modified; the
//     changed line sub-ranges come from the change detector and the pair
//     carries confidence 0.9.
//   - IDs only in the new set are added; IDs only in the old set are
//     deleted.
//
// A greedy move-detection pass then reconciles deleted and added chunks:
// for each deleted chunk, every unmatched added chunk of the same node type
// is scored by normalized edit-distance similarity, and the best match at
// or above the threshold (default 0.85) whose file or start line differs is
// folded into a single moved change with confidence 0.95. Matching is one
// to one; ties resolve to the highest score. The pass is a documented
// heuristic and makes no claim of global optimality.
//
// # Applying diffs
//
// UpdateChunks replays a diff onto an old chunk set and returns the merged
// set sorted by file path and start line. MergeIncrementalResults combines
// a partial reparse with a prior full chunk set, keeping full chunks that
// no changed region touched.
//
// # Usage
//
//	engine, err := diff.New(diff.Config{
//	    Chunker:  collaborator,
//	    Detector: detect.New(),
//	})
//	if err != nil {
//	    return err
//	}
//	d, err := engine.ComputeDiff(ctx, oldChunks, newSource, "go")
package diff
