// Package index provides a minimal in-memory search index that updates
// incrementally from chunk diffs.
//
// The index maps chunk IDs to normalized content and location, applies
// diffs change by change while keeping a bounded audit log, and estimates
// with UpdateCost whether an incremental update is cheaper than a rebuild:
//
//	cost := idx.UpdateCost(d)
//	if cost >= 1.0 {
//	    idx.Rebuild(allChunks)
//	} else {
//	    idx.ApplyDiff(d)
//	}
//
// Search is a linear case-insensitive substring scan; ranking and
// inverted-index search belong to the query engine outside this module.
package index
