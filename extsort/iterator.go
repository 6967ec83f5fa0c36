package extsort

import (
	"github.com/graphtide/shuffle"
	shuffleerrors "github.com/graphtide/shuffle/errors"
	"github.com/graphtide/shuffle/internal/kvfile"
)

// OpenIterator returns a peekable iterator over the entries of the given
// sorted spill files in a single global order. Multi-file iteration of
// sub-kv entries is not supported; consolidate to one file first (the
// partition controller's forced fan-in of 1 guarantees this).
func (e *Engine) OpenIterator(paths []string, strat shuffle.Strategy, subKV bool) (shuffle.PeekableIterator, error) {
	switch {
	case len(paths) == 0:
		return shuffle.EmptyIterator(), nil
	case len(paths) == 1:
		r, err := kvfile.Open(paths[0])
		if err != nil {
			return nil, err
		}
		return &peekIterator{src: &fileSource{r: r}, close: r.Close}, nil
	case subKV:
		return nil, shuffleerrors.ErrSubKVMultiFile
	default:
		src, err := newMergeSource(paths, strat, subKV)
		if err != nil {
			return nil, err
		}
		return &peekIterator{src: src, close: src.Close}, nil
	}
}

// entrySource is a pull-based stream of sorted entries.
type entrySource interface {
	next() (e shuffle.Entry, ok bool, err error)
}

// fileSource adapts a single spill file reader to entrySource.
type fileSource struct {
	r *kvfile.Reader
}

func (s *fileSource) next() (shuffle.Entry, bool, error) {
	if s.r.Next() {
		return shuffle.Entry{Key: s.r.Key(), Value: s.r.Value()}, true, nil
	}
	return shuffle.Entry{}, false, s.r.Err()
}

// peekIterator adapts an entrySource to shuffle.PeekableIterator with a
// one-entry look-ahead buffer.
type peekIterator struct {
	src   entrySource
	close func() error

	cur   shuffle.Entry
	ahead *shuffle.Entry
	err   error
}

func (it *peekIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.ahead != nil {
		it.cur = *it.ahead
		it.ahead = nil
		return true
	}
	e, ok, err := it.src.next()
	if err != nil {
		it.err = err
		return false
	}
	if !ok {
		return false
	}
	it.cur = e
	return true
}

func (it *peekIterator) Entry() shuffle.Entry {
	return it.cur
}

func (it *peekIterator) Peek() (shuffle.Entry, bool) {
	if it.ahead != nil {
		return *it.ahead, true
	}
	if it.err != nil {
		return shuffle.Entry{}, false
	}
	e, ok, err := it.src.next()
	if err != nil {
		it.err = err
		return shuffle.Entry{}, false
	}
	if !ok {
		return shuffle.Entry{}, false
	}
	it.ahead = &e
	return e, true
}

func (it *peekIterator) Err() error {
	return it.err
}

func (it *peekIterator) Close() error {
	if it.close == nil {
		return nil
	}
	c := it.close
	it.close = nil
	return c()
}
