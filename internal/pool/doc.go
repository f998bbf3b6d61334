// Package pool implements a generic, type-keyed object pool for expensive
// resources, primarily language parsers.
//
// # Semantics
//
// Acquire pops a free instance or constructs one through the type's
// factory. It never blocks waiting for a resource and never fails because
// the pool is "full": there is no bound on concurrently outstanding
// resources, only on how many are retained per type when released. Release
// resets reusable state and either pools the instance or drops it once the
// free list holds MaxPoolSize entries.
//
// Parser types follow the "parser:<language>" naming convention and are
// served by a single ParserFactory:
//
//	p := pool.New(pool.Config{MaxPoolSize: 4})
//	p.RegisterParserFactory(parserFactory)
//
//	res, err := p.Acquire(pool.ParserResourceType("go"))
//	if err != nil {
//	    return err
//	}
//	defer p.Release(pool.ParserResourceType("go"), res)
//
// WarmUp pre-constructs instances ahead of a batch run, and Stats exposes
// per-type pooled, in-use, acquired, released, and created counters. In-use
// tracking is an explicit acquired-minus-released counter, which keeps it
// an introspection aid rather than a correctness mechanism.
package pool
