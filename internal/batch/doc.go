// Package batch schedules files through the chunking pipeline.
//
// A Processor owns a priority queue of file tasks and drains it in
// batches. Higher priorities dispatch first; equal priorities dispatch in
// arrival order. Within one session a path is processed at most once:
// AddFile refuses duplicates of anything queued or already processed, so
// overlapping directory walks and watcher events cannot double-process a
// file.
//
// ProcessBatch is the only place the module runs work in parallel. The
// parallel path fans tasks out through an errgroup bounded by a worker
// semaphore; everything else in the processor sits behind one mutex.
// Failures are contained per file: a file that cannot be hashed, parsed,
// or chunked is logged, counted, and reported through Errors while the
// rest of the batch proceeds. Only cache index persistence failures
// propagate out of a batch.
//
// Cancellation is cooperative. Cancel sets an atomic flag checked before
// each dispatch, and context cancellation is honored at the same points;
// a task already dispatched always runs to completion, and tasks never
// dispatched stay queued.
package batch
