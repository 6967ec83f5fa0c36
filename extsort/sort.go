package extsort

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/graphtide/shuffle"
	"github.com/graphtide/shuffle/internal/kvfile"
)

// sortToFile decodes the buffered entries, orders them with the strategy's
// comparator and writes one sorted spill file. Runs on a pool worker.
func (e *Engine) sortToFile(ctx context.Context, bufs []shuffle.Buffer, path string, strat shuffle.Strategy, subKV bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, bodySize, err := decodeBuffers(bufs)
	if err != nil {
		return fmt.Errorf("decode received buffers: %w", err)
	}

	sortEntries(entries, strat, subKV)

	if c, ok := strat.(shuffle.Combiner); ok && !subKV {
		if entries, err = combineEntries(entries, strat, c); err != nil {
			return fmt.Errorf("combine entries: %w", err)
		}
	}

	w, err := kvfile.NewWriter(path, subKV, bodySize)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if err := w.Append(ent.Key, ent.Value); err != nil {
			return multierr.Append(err, w.Abort())
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	e.log.Debugw("Sorted buffers to spill file",
		zap.String("path", path), zap.Int("entries", len(entries)), zap.Int64("bytes", bodySize))
	return nil
}

// decodeBuffers splits every buffer into its entries. The returned entries
// alias the buffer memory; bodySize is the total encoded size, used to
// pre-size the spill file.
func decodeBuffers(bufs []shuffle.Buffer) ([]shuffle.Entry, int64, error) {
	var entries []shuffle.Entry
	var bodySize int64
	for _, buf := range bufs {
		b := []byte(buf)
		for len(b) > 0 {
			key, value, rest, err := kvfile.NextEntry(b)
			if err != nil {
				return nil, 0, err
			}
			entries = append(entries, shuffle.Entry{Key: key, Value: value})
			bodySize += int64(kvfile.EntrySize(key, value))
			b = rest
		}
	}
	return entries, bodySize, nil
}

// sortEntries orders entries by the strategy's key comparator. Sub-kv
// entries are additionally ordered by value bytes under equal keys; plain
// entries keep arrival order (stable sort), which the combiner relies on.
func sortEntries(entries []shuffle.Entry, strat shuffle.Strategy, subKV bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		c := strat.Compare(entries[i].Key, entries[j].Key)
		if c != 0 {
			return c < 0
		}
		if subKV {
			return bytes.Compare(entries[i].Value, entries[j].Value) < 0
		}
		return false
	})
}

// combineEntries collapses runs of equal keys by folding their values left
// to right. entries must already be sorted by key.
func combineEntries(entries []shuffle.Entry, strat shuffle.Strategy, c shuffle.Combiner) ([]shuffle.Entry, error) {
	out := entries[:0]
	for _, ent := range entries {
		if len(out) > 0 && strat.Compare(out[len(out)-1].Key, ent.Key) == 0 {
			v, err := c.Combine(out[len(out)-1].Value, ent.Value)
			if err != nil {
				return nil, err
			}
			out[len(out)-1].Value = v
			continue
		}
		out = append(out, ent)
	}
	return out, nil
}
