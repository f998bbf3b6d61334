// Package types provides shared type definitions for the incremental chunk
// processing engine.
//
// This package defines the domain types used across the engine's components,
// including chunks, chunk changes and diffs, cache entries, and the
// collaborator interfaces the engine consumes.
//
// # Core Types
//
// Chunk represents a semantic code fragment produced by the external
// structural parser:
//
//	chunk := types.Chunk{
//	    FilePath:  "pkg/auth/login.go",
//	    Language:  "go",
//	    NodeType:  types.NodeFunction,
//	    StartLine: 10,
//	    EndLine:   24,
//	    Content:   functionBody,
//	}
//	chunk.ComputeID()
//
// Chunk identity is deterministic: the ID is derived from the quadruple
// (file path, start line, end line, content), so identical fragments always
// carry identical IDs. This property is what makes set-algebra diffing of
// two chunk sets possible.
//
// # Changes and Diffs
//
// ChunkChange classifies one transition between two versions of a file:
//
//	change := types.ChunkChange{
//	    ChunkID:    newChunk.ID,
//	    Kind:       types.ChangeMoved,
//	    OldChunk:   &oldChunk,
//	    NewChunk:   &newChunk,
//	    Confidence: 0.95,
//	}
//
// ChunkDiff aggregates all transitions plus the partitioned added, deleted,
// modified, and unchanged lists. After move reconciliation every chunk ID
// from either input appears in exactly one partition.
//
// # Cache Types
//
// CacheEntry is the persisted unit of the on-disk chunk cache; IndexEntry
// and CacheIndex describe the lightweight index kept beside the blobs;
// CacheExport is the portable dump format for moving a cache between
// machines or sessions.
//
// # Collaborator Interfaces
//
// The engine does not parse source code. Chunker is the narrow interface
// through which parsed chunk sets arrive, and ParserFactory constructs the
// reusable parser instances managed by the object pool:
//
//	chunks, err := chunker.ChunkText(ctx, source, "python")
//	if err != nil {
//	    return err
//	}
//
// # Validation
//
// Domain types carry validation methods to ensure data integrity:
//
//	if err := chunk.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := change.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
