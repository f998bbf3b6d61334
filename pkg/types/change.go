package types

// LineRange is an inclusive range of 1-based source line numbers.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines covered by the range.
func (r LineRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether the given line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Overlap returns the number of lines shared between the two ranges.
func (r LineRange) Overlap(o LineRange) int {
	lo := r.Start
	if o.Start > lo {
		lo = o.Start
	}
	hi := r.End
	if o.End < hi {
		hi = o.End
	}
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

// ChangeKind classifies one chunk transition between two file versions.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeMoved    ChangeKind = "moved"
	ChangeRenamed  ChangeKind = "renamed"

	// ChangeUnchanged is a classification outcome only. It is returned by
	// change detection for chunks untouched by an edit and never appears
	// inside a ChunkChange.
	ChangeUnchanged ChangeKind = "unchanged"
)

// ChunkChange represents one classified transition for a single chunk.
// ChunkID is the surviving identity: the new chunk's ID for added, modified,
// and moved changes, the old chunk's ID for deleted changes.
type ChunkChange struct {
	ChunkID      string      `json:"chunk_id"`
	Kind         ChangeKind  `json:"kind"`
	OldChunk     *Chunk      `json:"old_chunk,omitempty"`
	NewChunk     *Chunk      `json:"new_chunk,omitempty"`
	ChangedLines []LineRange `json:"changed_lines,omitempty"`
	Confidence   float64     `json:"confidence"`
}

// Validate checks kind, confidence, and chunk presence for the kind
func (cc *ChunkChange) Validate() error {
	switch cc.Kind {
	case ChangeAdded:
		if cc.NewChunk == nil {
			return ErrMissingChunk
		}
	case ChangeDeleted:
		if cc.OldChunk == nil {
			return ErrMissingChunk
		}
	case ChangeModified, ChangeMoved, ChangeRenamed:
		if cc.OldChunk == nil || cc.NewChunk == nil {
			return ErrMissingChunk
		}
	default:
		return ErrInvalidChangeKind
	}

	if cc.Confidence < 0 || cc.Confidence > 1 {
		return ErrInvalidConfidence
	}

	return nil
}

// ModifiedPair couples the old and new version of a chunk whose ID survived
// an edit with different content.
type ModifiedPair struct {
	Old Chunk `json:"old"`
	New Chunk `json:"new"`
}

// ChunkDiff is the aggregate result of diffing an old chunk set against new
// source text. Changes holds every added, deleted, modified, and moved
// transition in that order; moved pairs appear only there. The partition
// lists and Changes together cover every chunk ID from either input exactly
// once.
type ChunkDiff struct {
	Changes   []ChunkChange  `json:"changes"`
	Added     []Chunk        `json:"added"`
	Deleted   []Chunk        `json:"deleted"`
	Modified  []ModifiedPair `json:"modified"`
	Unchanged []Chunk        `json:"unchanged"`
	Summary   map[string]int `json:"summary"`
}

// IsEmpty reports whether the diff carries no changes at all.
func (d *ChunkDiff) IsEmpty() bool {
	return len(d.Changes) == 0
}

// MovedCount returns the number of moved pairs folded into Changes.
func (d *ChunkDiff) MovedCount() int {
	n := 0
	for i := range d.Changes {
		if d.Changes[i].Kind == ChangeMoved {
			n++
		}
	}
	return n
}
