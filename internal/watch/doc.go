// Package watch keeps the chunk cache honest while files change on disk.
//
// A Watcher registers a directory tree with fsnotify and collects events
// into a pending set that is flushed on a debounce tick, so editor save
// storms and build churn collapse into one notification per file. Each
// flush invalidates the changed paths in the chunk cache before invoking
// the optional OnChange callback, which callers typically point at the
// batch processor to re-enqueue the changed files.
//
// Directories created under the root are added to the watch set as they
// appear. Paths matching the batch package's default ignore patterns are
// skipped entirely.
package watch
