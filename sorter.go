package shuffle

import (
	"bytes"
	"context"
)

// Strategy supplies the two hooks a concrete record kind (vertex, edge,
// message) plugs into a Partition: a record-type tag used for spill path
// allocation, and the key ordering applied by the sorting engine. It
// replaces the subclass hooks of a class hierarchy with a capability
// interface.
type Strategy interface {
	// Kind returns the record-type tag, e.g. "vertex", "edge" or "message".
	Kind() string

	// Compare orders two record keys. Negative when a sorts before b,
	// zero when equal, positive otherwise.
	Compare(a, b []byte) int
}

// Combiner is an optional capability of a Strategy. When implemented, the
// sorting engine combines the values of entries with equal keys during
// flushes and merges, e.g. summing partial aggregates of inter-vertex
// messages.
type Combiner interface {
	Combine(a, b []byte) ([]byte, error)
}

// Sorter is the asynchronous sort/merge collaborator. Implementations own
// their worker pool; SortToFile never blocks the caller beyond submission,
// MergeFiles blocks until the merge completes.
type Sorter interface {
	// SortToFile sorts the entries held by bufs and writes them to path as
	// one sorted spill file. The returned channel delivers exactly one
	// result (nil on success) and is then closed. The buffers belong to the
	// engine until the result is delivered.
	SortToFile(ctx context.Context, bufs []Buffer, path string, strat Strategy, subKV bool) <-chan error

	// MergeFiles consolidates the sorted inputs into len(outputs) sorted
	// files via a k-way merge, blocking until done.
	MergeFiles(ctx context.Context, inputs, outputs []string, strat Strategy, subKV bool) error

	// OpenIterator returns a peekable iterator yielding the entries of the
	// given sorted files in a single global order.
	OpenIterator(paths []string, strat Strategy, subKV bool) (PeekableIterator, error)
}

// BytesStrategy returns a Strategy ordering keys by raw byte comparison,
// tagged with the given record kind.
func BytesStrategy(kind string) Strategy {
	return bytesStrategy(kind)
}

type bytesStrategy string

func (s bytesStrategy) Kind() string            { return string(s) }
func (s bytesStrategy) Compare(a, b []byte) int { return bytes.Compare(a, b) }
