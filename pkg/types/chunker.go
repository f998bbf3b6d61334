package types

import (
	"context"
	"io"
)

// Chunker is the external structural-parsing collaborator: it turns source
// text into a chunk set for a language. The engine never parses source
// itself; everything it knows about code structure arrives through this
// interface.
type Chunker interface {
	// ChunkText parses raw source text and returns its chunk set.
	ChunkText(ctx context.Context, text, language string) ([]Chunk, error)

	// ChunkFile reads and parses the file at path.
	ChunkFile(ctx context.Context, path, language string) ([]Chunk, error)
}

// ParserHandle is an opaque reusable parser instance owned by the object
// pool between acquisitions.
type ParserHandle interface {
	io.Closer
}

// ParserFactory constructs parser instances for the object pool's
// "parser:<language>" resource types.
type ParserFactory interface {
	NewParser(language string) (ParserHandle, error)
}
