package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

// Detector computes content digests, line-level change regions, and
// similarity scores. It is stateless and safe for concurrent use.
type Detector struct{}

// New creates a change detector.
func New() *Detector {
	return &Detector{}
}

// HashContent returns the hex SHA-256 digest of raw bytes. This digest is
// the sole cache validity gate; it is never replaced by a heuristic.
func (d *Detector) HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile streams the file at path through SHA-256 and returns the hex
// digest.
func (d *Detector) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FastHash returns a cheap xxhash64 digest of raw bytes. It is a pre-filter
// companion to HashContent, never a validity gate.
func (d *Detector) FastHash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// ChangedRegions runs an LCS line diff between two text versions and
// returns the 1-based inclusive line ranges covered by non-equal edit
// operations, with adjacent and overlapping ranges merged. Deletes
// contribute old-side lines, inserts new-side lines, and replaces both, so
// a range marks every line an edit touched on either side.
func (d *Detector) ChangedRegions(oldText, newText string) []types.LineRange {
	if oldText == newText {
		return nil
	}

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	var regions []types.LineRange
	matcher := difflib.NewMatcher(oldLines, newLines)
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		// Opcode indices are 0-based half-open slice bounds.
		if op.I2 > op.I1 {
			regions = append(regions, types.LineRange{Start: op.I1 + 1, End: op.I2})
		}
		if op.J2 > op.J1 {
			regions = append(regions, types.LineRange{Start: op.J1 + 1, End: op.J2})
		}
	}

	return MergeRanges(regions)
}

// Classify decides how a set of changed line ranges affects one old chunk.
// Zero overlap means the chunk is untouched (ChangeUnchanged). Full overlap
// means the chunk's old identity is gone and it is classified as deleted,
// even if similar content reappears at the same location under a new ID.
// Any partial overlap is a modification.
func (d *Detector) Classify(old types.Chunk, changed []types.LineRange) types.ChangeKind {
	span := old.Lines()
	total := span.Len()
	if total == 0 {
		return types.ChangeUnchanged
	}

	overlap := 0
	for _, r := range MergeRanges(changed) {
		overlap += span.Overlap(r)
	}

	switch {
	case overlap == 0:
		return types.ChangeUnchanged
	case overlap >= total:
		return types.ChangeDeleted
	default:
		return types.ChangeModified
	}
}

// Similarity returns a normalized edit-distance similarity in [0, 1]:
// 1 - levenshtein(a, b) / max(len(a), len(b)), counted in runes. Two empty
// strings are identical.
func (d *Detector) Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}

	return 1.0 - float64(distance)/float64(longest)
}

// MergeRanges sorts line ranges and merges overlapping or adjacent ones.
// Empty ranges are dropped.
func MergeRanges(ranges []types.LineRange) []types.LineRange {
	valid := make([]types.LineRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Len() > 0 {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})

	merged := []types.LineRange{valid[0]}
	for _, r := range valid[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
