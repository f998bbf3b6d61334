package types

import "errors"

// Domain errors shared across the caching and batch-processing engine
var (
	// Cache retrieval outcomes. All three mean "no usable entry"; they are
	// kept distinct so statistics can tell them apart.
	ErrCacheMiss       = errors.New("cache entry not found")
	ErrHashMismatch    = errors.New("cache entry hash mismatch")
	ErrCacheCorruption = errors.New("cache entry corrupted")

	// ErrIndexPersistence marks a failure to read or write the cache's own
	// index file. It is the one cache error allowed to propagate.
	ErrIndexPersistence = errors.New("cache index persistence failed")

	// ErrCacheClosed marks any cache operation attempted after Close.
	ErrCacheClosed = errors.New("cache is closed")

	// ErrProcessing marks a single file's chunking failure inside a batch.
	ErrProcessing = errors.New("file processing failed")

	// Object pool errors
	ErrPoolClosed          = errors.New("object pool is closed")
	ErrUnknownResourceType = errors.New("no factory registered for resource type")

	// Cache schema and import errors
	ErrUnsupportedSchema = errors.New("unsupported cache schema version")
	ErrImportFormat      = errors.New("invalid cache import format")

	// Change validation errors
	ErrInvalidChangeKind = errors.New("invalid change kind")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	ErrMissingChunk      = errors.New("change is missing a required chunk")
)
