// Package monitor provides timing and metric aggregation for the chunk
// processing engine.
//
// A Monitor retains a small rolling window of samples per metric name and
// computes count, mean, min, and max on read. Operation timing uses a
// handle-returning API:
//
//	op := mon.StartOperation("diff.compute")
//	defer mon.EndOperation(op)
//
// or the scoped form:
//
//	err := mon.Measure("cache.store", func() error {
//	    return cache.Store(path, chunks, hash, nil)
//	})
//
// Durations are recorded in milliseconds under "<name>.duration_ms".
package monitor
