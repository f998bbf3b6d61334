package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// NodeType identifies the syntax-tree construct a chunk was carved from.
// The set is open: language rule tables may emit values beyond the
// constants below, and the engine treats them opaquely.
type NodeType string

const (
	NodeFunction  NodeType = "function"
	NodeMethod    NodeType = "method"
	NodeClass     NodeType = "class"
	NodeStruct    NodeType = "struct"
	NodeInterface NodeType = "interface"
	NodeModule    NodeType = "module"
	NodeBlock     NodeType = "block"
)

// Chunk represents a semantically meaningful code fragment produced by the
// external structural parser. Chunks are immutable once created; the engine
// classifies and relocates them logically but never rewrites their content.
type Chunk struct {
	// Identification
	ID       string `json:"chunk_id"`
	ParentID string `json:"parent_chunk_id,omitempty"`

	// Origin
	Language string   `json:"language,omitempty"`
	FilePath string   `json:"file_path"`
	NodeType NodeType `json:"node_type"`

	// Location
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	ByteStart int `json:"byte_start,omitempty"`
	ByteEnd   int `json:"byte_end,omitempty"`

	// Content
	Content       string `json:"content"`
	ParentContext string `json:"parent_context,omitempty"`

	// Relationships
	References   []string `json:"references,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`

	// Metadata
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ComputeID derives the deterministic chunk identifier from the identity
// quadruple (file path, start line, end line, content), stores it on the
// chunk, and returns it. Identical quadruples always yield identical IDs,
// which is what makes identity-based diffing possible.
func (c *Chunk) ComputeID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", c.FilePath, c.StartLine, c.EndLine, c.Content)))
	c.ID = hex.EncodeToString(sum[:])[:16]
	return c.ID
}

// Lines returns the chunk's inclusive line span.
func (c *Chunk) Lines() LineRange {
	return LineRange{Start: c.StartLine, End: c.EndLine}
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// ValidateLocation checks the byte span and file path
func (c *Chunk) ValidateLocation() error {
	if c.FilePath == "" {
		return errors.New("file path is required")
	}

	if c.ByteStart < 0 || c.ByteEnd < 0 {
		return errors.New("byte offsets must be non-negative")
	}

	if c.ByteEnd != 0 && c.ByteStart > c.ByteEnd {
		return errors.New("byte start must be before or equal to byte end")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if err := c.ValidateLocation(); err != nil {
		return err
	}

	if c.NodeType == "" {
		return errors.New("node type is required")
	}

	if c.ID == "" {
		return errors.New("chunk ID must be computed")
	}

	return nil
}
