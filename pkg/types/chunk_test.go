package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeID_Deterministic(t *testing.T) {
	a := Chunk{
		FilePath:  "main.go",
		NodeType:  NodeFunction,
		StartLine: 10,
		EndLine:   20,
		Content:   "func main() {}",
	}
	b := a

	idA := a.ComputeID()
	idB := b.ComputeID()

	assert.Equal(t, idA, idB)
	assert.Len(t, idA, 16)
	assert.Equal(t, idA, a.ID)
}

func TestComputeID_SensitiveToIdentityFields(t *testing.T) {
	base := Chunk{
		FilePath:  "main.go",
		StartLine: 10,
		EndLine:   20,
		Content:   "func main() {}",
	}

	tests := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{name: "different path", mutate: func(c *Chunk) { c.FilePath = "other.go" }},
		{name: "different start line", mutate: func(c *Chunk) { c.StartLine = 11 }},
		{name: "different end line", mutate: func(c *Chunk) { c.EndLine = 21 }},
		{name: "different content", mutate: func(c *Chunk) { c.Content = "func main() { return }" }},
	}

	want := base
	wantID := want.ComputeID()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.NotEqual(t, wantID, c.ComputeID())
		})
	}
}

func TestComputeID_IgnoresNonIdentityFields(t *testing.T) {
	a := Chunk{FilePath: "a.go", StartLine: 1, EndLine: 3, Content: "x"}
	b := a
	b.NodeType = NodeClass
	b.Language = "python"
	b.ParentID = "deadbeef00000000"

	assert.Equal(t, a.ComputeID(), b.ComputeID())
}

func TestChunkLines(t *testing.T) {
	c := Chunk{StartLine: 5, EndLine: 9}
	r := c.Lines()

	assert.Equal(t, 5, r.Start)
	assert.Equal(t, 9, r.End)
	assert.Equal(t, 5, r.Len())
}

func TestChunkValidate(t *testing.T) {
	valid := Chunk{
		FilePath:  "svc/handler.go",
		NodeType:  NodeFunction,
		StartLine: 1,
		EndLine:   4,
		Content:   "func handle() {}",
	}
	valid.ComputeID()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Chunk)
	}{
		{name: "empty content", mutate: func(c *Chunk) { c.Content = "" }},
		{name: "zero start line", mutate: func(c *Chunk) { c.StartLine = 0 }},
		{name: "negative end line", mutate: func(c *Chunk) { c.EndLine = -1 }},
		{name: "inverted line span", mutate: func(c *Chunk) { c.StartLine = 10; c.EndLine = 2 }},
		{name: "missing file path", mutate: func(c *Chunk) { c.FilePath = "" }},
		{name: "negative byte offset", mutate: func(c *Chunk) { c.ByteStart = -4 }},
		{name: "inverted byte span", mutate: func(c *Chunk) { c.ByteStart = 100; c.ByteEnd = 50 }},
		{name: "missing node type", mutate: func(c *Chunk) { c.NodeType = "" }},
		{name: "missing id", mutate: func(c *Chunk) { c.ID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
