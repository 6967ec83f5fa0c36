package extsort

import (
	"bytes"
	"container/heap"
	"context"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/graphtide/shuffle"
	shuffleerrors "github.com/graphtide/shuffle/errors"
	"github.com/graphtide/shuffle/internal/kvfile"
)

// MergeFiles consolidates the sorted inputs into len(outputs) sorted files.
// Inputs are split into contiguous groups, one per output, and each group is
// k-way merged. Inputs are removed once their group merged successfully.
func (e *Engine) MergeFiles(ctx context.Context, inputs, outputs []string, strat shuffle.Strategy, subKV bool) error {
	if len(outputs) == 0 {
		return shuffleerrors.ErrNoMergeOutputs
	}
	if e.closed.Load() {
		return shuffleerrors.ErrEngineClosed
	}

	groups := splitGroups(inputs, len(outputs))
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.mergeGroup(group, outputs[i], strat, subKV); err != nil {
			return fmt.Errorf("merge %d files into %s: %w", len(group), outputs[i], err)
		}
		for _, in := range group {
			if err := os.Remove(in); err != nil {
				e.log.Warnw("Failed to remove merged spill file", zap.String("path", in), zap.Error(err))
			}
		}
	}
	return nil
}

// splitGroups partitions paths into n contiguous groups of near-equal size.
func splitGroups(paths []string, n int) [][]string {
	if n > len(paths) {
		n = len(paths)
	}
	groups := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		lo := i * len(paths) / n
		hi := (i + 1) * len(paths) / n
		groups = append(groups, paths[lo:hi])
	}
	return groups
}

func (e *Engine) mergeGroup(inputs []string, output string, strat shuffle.Strategy, subKV bool) error {
	var sizeHint int64
	for _, in := range inputs {
		if stat, err := os.Stat(in); err == nil {
			sizeHint += stat.Size()
		}
	}

	src, err := newMergeSource(inputs, strat, subKV)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := kvfile.NewWriter(output, subKV, sizeHint)
	if err != nil {
		return err
	}

	combiner, _ := strat.(shuffle.Combiner)
	if subKV {
		combiner = nil
	}

	var pendingKey, pendingValue []byte
	havePending := false
	for {
		ent, ok, err := src.next()
		if err != nil {
			return multierr.Append(err, w.Abort())
		}
		if !ok {
			break
		}
		if combiner == nil {
			if err := w.Append(ent.Key, ent.Value); err != nil {
				return multierr.Append(err, w.Abort())
			}
			continue
		}
		if havePending && strat.Compare(pendingKey, ent.Key) == 0 {
			v, err := combiner.Combine(pendingValue, ent.Value)
			if err != nil {
				return multierr.Append(err, w.Abort())
			}
			pendingValue = v
			continue
		}
		if havePending {
			if err := w.Append(pendingKey, pendingValue); err != nil {
				return multierr.Append(err, w.Abort())
			}
		}
		// Copy out of the mmap: the source may release the backing file
		// before the pending entry is written.
		pendingKey = append([]byte(nil), ent.Key...)
		pendingValue = append([]byte(nil), ent.Value...)
		havePending = true
	}
	if havePending {
		if err := w.Append(pendingKey, pendingValue); err != nil {
			return multierr.Append(err, w.Abort())
		}
	}
	return w.Close()
}

// mergeItem is one head-of-file entry in the merge heap.
type mergeItem struct {
	entry shuffle.Entry
	idx   int // reader index, ties broken by submission order
}

// mergeSource yields entries from several sorted spill files in a single
// global order via a k-way heap merge.
type mergeSource struct {
	readers []*kvfile.Reader
	h       mergeHeap
}

func newMergeSource(paths []string, strat shuffle.Strategy, subKV bool) (*mergeSource, error) {
	s := &mergeSource{
		h: mergeHeap{strat: strat, subKV: subKV},
	}
	for _, path := range paths {
		r, err := kvfile.Open(path)
		if err != nil {
			return nil, multierr.Append(err, s.Close())
		}
		s.readers = append(s.readers, r)
	}
	for i, r := range s.readers {
		if r.Next() {
			s.h.items = append(s.h.items, mergeItem{
				entry: shuffle.Entry{Key: r.Key(), Value: r.Value()},
				idx:   i,
			})
		} else if err := r.Err(); err != nil {
			return nil, multierr.Append(err, s.Close())
		}
	}
	heap.Init(&s.h)
	return s, nil
}

func (s *mergeSource) next() (shuffle.Entry, bool, error) {
	if s.h.Len() == 0 {
		return shuffle.Entry{}, false, nil
	}
	item := s.h.items[0]
	r := s.readers[item.idx]
	if r.Next() {
		s.h.items[0] = mergeItem{
			entry: shuffle.Entry{Key: r.Key(), Value: r.Value()},
			idx:   item.idx,
		}
		heap.Fix(&s.h, 0)
	} else {
		if err := r.Err(); err != nil {
			return shuffle.Entry{}, false, err
		}
		heap.Pop(&s.h)
	}
	return item.entry, true, nil
}

func (s *mergeSource) Close() error {
	var err error
	for _, r := range s.readers {
		err = multierr.Append(err, r.Close())
	}
	s.readers = nil
	return err
}

// mergeHeap implements heap.Interface ordered by the strategy comparator,
// then value bytes for sub-kv files, then reader index for stability.
type mergeHeap struct {
	items []mergeItem
	strat shuffle.Strategy
	subKV bool
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.strat.Compare(a.entry.Key, b.entry.Key); c != 0 {
		return c < 0
	}
	if h.subKV {
		if c := bytes.Compare(a.entry.Value, b.entry.Value); c != 0 {
			return c < 0
		}
	}
	return a.idx < b.idx
}

func (h *mergeHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mergeHeap) Push(x any) {
	h.items = append(h.items, x.(mergeItem))
}

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
