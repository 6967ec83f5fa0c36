// Package errors defines all exported error sentinels for the shuffle library.
//
// This is the single source of truth for error values. Both the top-level
// shuffle package and the extsort engine import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Partition errors
var (
	ErrPartitionFinalized = errors.New("shuffle: partition is finalized, no more buffers accepted")
	ErrFlushTimeout       = errors.New("shuffle: timed out waiting for a spill flush to complete")
	ErrPartitionPoisoned  = errors.New("shuffle: partition poisoned by an earlier flush failure")
)

// Spill file errors
var (
	ErrInvalidMagic   = errors.New("shuffle: invalid spill file magic number")
	ErrTruncatedFile  = errors.New("shuffle: spill file is truncated")
	ErrChecksumFailed = errors.New("shuffle: spill file checksum verification failed")
	ErrWriterClosed   = errors.New("shuffle: spill writer is closed")
)

// Engine errors
var (
	ErrEngineClosed   = errors.New("shuffle: sort engine is closed")
	ErrSubKVMultiFile = errors.New("shuffle: sub-kv iteration across multiple files is not supported")
	ErrTruncatedEntry = errors.New("shuffle: truncated entry in received buffer")
	ErrNoMergeOutputs = errors.New("shuffle: merge requires at least one output path")
)
