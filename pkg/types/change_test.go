package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRange(t *testing.T) {
	tests := []struct {
		name    string
		r       LineRange
		wantLen int
	}{
		{name: "single line", r: LineRange{Start: 3, End: 3}, wantLen: 1},
		{name: "multi line", r: LineRange{Start: 3, End: 7}, wantLen: 5},
		{name: "inverted is empty", r: LineRange{Start: 7, End: 3}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantLen, tt.r.Len())
		})
	}

	r := LineRange{Start: 10, End: 20}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(9))
	assert.False(t, r.Contains(21))
}

func TestLineRangeOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b LineRange
		want int
	}{
		{name: "disjoint", a: LineRange{1, 5}, b: LineRange{10, 12}, want: 0},
		{name: "touching endpoints", a: LineRange{1, 5}, b: LineRange{5, 9}, want: 1},
		{name: "contained", a: LineRange{1, 10}, b: LineRange{4, 6}, want: 3},
		{name: "partial", a: LineRange{1, 6}, b: LineRange{4, 9}, want: 3},
		{name: "identical", a: LineRange{2, 4}, b: LineRange{2, 4}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlap(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlap(tt.a))
		})
	}
}

func TestChunkChangeValidate(t *testing.T) {
	old := &Chunk{FilePath: "a.go", StartLine: 1, EndLine: 2, Content: "old"}
	updated := &Chunk{FilePath: "a.go", StartLine: 1, EndLine: 2, Content: "new"}

	tests := []struct {
		name    string
		change  ChunkChange
		wantErr error
	}{
		{
			name:   "valid added",
			change: ChunkChange{Kind: ChangeAdded, NewChunk: updated, Confidence: 1.0},
		},
		{
			name:   "valid deleted",
			change: ChunkChange{Kind: ChangeDeleted, OldChunk: old, Confidence: 1.0},
		},
		{
			name:   "valid modified",
			change: ChunkChange{Kind: ChangeModified, OldChunk: old, NewChunk: updated, Confidence: 0.9},
		},
		{
			name:    "added without new chunk",
			change:  ChunkChange{Kind: ChangeAdded, Confidence: 1.0},
			wantErr: ErrMissingChunk,
		},
		{
			name:    "deleted without old chunk",
			change:  ChunkChange{Kind: ChangeDeleted, Confidence: 1.0},
			wantErr: ErrMissingChunk,
		},
		{
			name:    "moved without both chunks",
			change:  ChunkChange{Kind: ChangeMoved, NewChunk: updated, Confidence: 0.95},
			wantErr: ErrMissingChunk,
		},
		{
			name:    "unchanged is not a transition",
			change:  ChunkChange{Kind: ChangeUnchanged, OldChunk: old, NewChunk: updated},
			wantErr: ErrInvalidChangeKind,
		},
		{
			name:    "unknown kind",
			change:  ChunkChange{Kind: "sideways", OldChunk: old, NewChunk: updated},
			wantErr: ErrInvalidChangeKind,
		},
		{
			name:    "confidence above one",
			change:  ChunkChange{Kind: ChangeAdded, NewChunk: updated, Confidence: 1.5},
			wantErr: ErrInvalidConfidence,
		},
		{
			name:    "negative confidence",
			change:  ChunkChange{Kind: ChangeDeleted, OldChunk: old, Confidence: -0.1},
			wantErr: ErrInvalidConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChunkDiffHelpers(t *testing.T) {
	empty := &ChunkDiff{}
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.MovedCount())

	d := &ChunkDiff{
		Changes: []ChunkChange{
			{Kind: ChangeAdded},
			{Kind: ChangeMoved},
			{Kind: ChangeDeleted},
			{Kind: ChangeMoved},
		},
	}
	assert.False(t, d.IsEmpty())
	assert.Equal(t, 2, d.MovedCount())
}
