// Package detect implements content hashing and line-level change
// detection.
//
// The detector offers three orthogonal capabilities:
//
//   - Digests: HashContent and HashFile produce the hex SHA-256 digest used
//     as the cache validity gate; FastHash produces a cheap xxhash64
//     companion for pre-filtering.
//   - Changed regions: ChangedRegions diffs two text versions line by line
//     (longest-common-subsequence opcodes) and reports the merged line
//     ranges that any edit touched.
//   - Classification: Classify maps a chunk's line span against changed
//     regions to unchanged, modified, or deleted; Similarity scores two
//     contents by normalized edit distance for move detection.
//
// A chunk whose entire span was rewritten classifies as deleted, not
// modified: its old identity no longer applies even when similar content
// occupies the same location. Partial overlap is a modification.
package detect
