package extsort

import (
	"context"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphtide/shuffle"
	shuffleerrors "github.com/graphtide/shuffle/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(2)
	t.Cleanup(func() {
		require.NoError(t, e.Close())
	})
	return e
}

func bufferOf(pairs ...string) shuffle.Buffer {
	if len(pairs)%2 != 0 {
		panic("bufferOf needs key/value pairs")
	}
	var b []byte
	for i := 0; i < len(pairs); i += 2 {
		b = AppendEntry(b, []byte(pairs[i]), []byte(pairs[i+1]))
	}
	return b
}

func waitSort(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sort did not complete")
	}
}

func drain(t *testing.T, it shuffle.PeekableIterator) [][2]string {
	t.Helper()
	var got [][2]string
	for it.Next() {
		e := it.Entry()
		got = append(got, [2]string{string(e.Key), string(e.Value)})
	}
	require.NoError(t, it.Err())
	return got
}

func TestSortToFileOrdersEntries(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "run.spill")
	strat := shuffle.BytesStrategy("message")

	bufs := []shuffle.Buffer{
		bufferOf("pear", "3", "apple", "1"),
		bufferOf("orange", "2"),
	}
	waitSort(t, e.SortToFile(context.Background(), bufs, path, strat, false))

	it, err := e.OpenIterator([]string{path}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, [][2]string{
		{"apple", "1"},
		{"orange", "2"},
		{"pear", "3"},
	}, drain(t, it))
}

func TestSortToFileKeepsDuplicateKeysInArrivalOrder(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "dup.spill")
	strat := shuffle.BytesStrategy("message")

	bufs := []shuffle.Buffer{
		bufferOf("k", "first", "a", "x"),
		bufferOf("k", "second"),
	}
	waitSort(t, e.SortToFile(context.Background(), bufs, path, strat, false))

	it, err := e.OpenIterator([]string{path}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, [][2]string{
		{"a", "x"},
		{"k", "first"},
		{"k", "second"},
	}, drain(t, it))
}

// sumStrategy combines duplicate keys by summing little-endian uint64 values.
type sumStrategy struct {
	shuffle.Strategy
}

func (sumStrategy) Combine(a, b []byte) ([]byte, error) {
	if len(a) != 8 || len(b) != 8 {
		return nil, fmt.Errorf("bad value length %d/%d", len(a), len(b))
	}
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, binary.LittleEndian.Uint64(a)+binary.LittleEndian.Uint64(b))
	return out, nil
}

func u64(v uint64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return string(b[:])
}

func TestSortToFileCombinesDuplicates(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "combine.spill")
	strat := sumStrategy{shuffle.BytesStrategy("message")}

	bufs := []shuffle.Buffer{
		bufferOf("b", u64(10), "a", u64(1)),
		bufferOf("b", u64(5), "b", u64(1)),
	}
	waitSort(t, e.SortToFile(context.Background(), bufs, path, strat, false))

	it, err := e.OpenIterator([]string{path}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, [][2]string{
		{"a", u64(1)},
		{"b", u64(16)},
	}, drain(t, it))
}

func TestSortToFileSubKVOrdersByValue(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "subkv.spill")
	strat := shuffle.BytesStrategy("edge")

	bufs := []shuffle.Buffer{
		bufferOf("v1", "e3", "v1", "e1", "v0", "e9"),
		bufferOf("v1", "e2"),
	}
	waitSort(t, e.SortToFile(context.Background(), bufs, path, strat, true))

	it, err := e.OpenIterator([]string{path}, strat, true)
	require.NoError(t, err)
	defer it.Close()

	assert.Equal(t, [][2]string{
		{"v0", "e9"},
		{"v1", "e1"},
		{"v1", "e2"},
		{"v1", "e3"},
	}, drain(t, it))
}

func TestSortToFileRejectsGarbageBuffer(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "garbage.spill")

	done := e.SortToFile(context.Background(), []shuffle.Buffer{{0xff, 0xff}}, path, shuffle.BytesStrategy("message"), false)
	select {
	case err := <-done:
		require.ErrorIs(t, err, shuffleerrors.ErrTruncatedEntry)
	case <-time.After(5 * time.Second):
		t.Fatal("sort did not complete")
	}
}

func TestMergeFilesProducesGlobalOrder(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	strat := shuffle.BytesStrategy("message")
	ctx := context.Background()

	rng := mrand.New(mrand.NewPCG(7, 7))
	var inputs []string
	var want []string
	for i := 0; i < 3; i++ {
		var pairs []string
		for j := 0; j < 50; j++ {
			key := fmt.Sprintf("key-%05d", rng.IntN(100000))
			pairs = append(pairs, key, fmt.Sprintf("run%d", i))
			want = append(want, key)
		}
		path := filepath.Join(dir, fmt.Sprintf("run%d.spill", i))
		waitSort(t, e.SortToFile(ctx, []shuffle.Buffer{bufferOf(pairs...)}, path, strat, false))
		inputs = append(inputs, path)
	}
	sort.Strings(want)

	output := filepath.Join(dir, "merged.spill")
	require.NoError(t, e.MergeFiles(ctx, inputs, []string{output}, strat, false))

	// Merged inputs are removed.
	for _, in := range inputs {
		_, err := os.Stat(in)
		assert.True(t, os.IsNotExist(err), "input %s still exists", in)
	}

	it, err := e.OpenIterator([]string{output}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for _, kv := range drain(t, it) {
		got = append(got, kv[0])
	}
	assert.Equal(t, want, got)
}

func TestMergeFilesRequiresOutputs(t *testing.T) {
	e := newTestEngine(t)
	err := e.MergeFiles(context.Background(), []string{"a"}, nil, shuffle.BytesStrategy("message"), false)
	require.ErrorIs(t, err, shuffleerrors.ErrNoMergeOutputs)
}

func TestOpenIteratorMergesMultipleFiles(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	strat := shuffle.BytesStrategy("message")
	ctx := context.Background()

	a := filepath.Join(dir, "a.spill")
	b := filepath.Join(dir, "b.spill")
	waitSort(t, e.SortToFile(ctx, []shuffle.Buffer{bufferOf("a", "1", "c", "3")}, a, strat, false))
	waitSort(t, e.SortToFile(ctx, []shuffle.Buffer{bufferOf("b", "2", "d", "4")}, b, strat, false))

	it, err := e.OpenIterator([]string{a, b}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	peeked, ok := it.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", string(peeked.Key))

	assert.Equal(t, [][2]string{
		{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"},
	}, drain(t, it))
}

func TestOpenIteratorSubKVMultiFileUnsupported(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OpenIterator([]string{"a", "b"}, shuffle.BytesStrategy("edge"), true)
	require.ErrorIs(t, err, shuffleerrors.ErrSubKVMultiFile)
}

func TestOpenIteratorNoFiles(t *testing.T) {
	e := newTestEngine(t)
	it, err := e.OpenIterator(nil, shuffle.BytesStrategy("message"), false)
	require.NoError(t, err)
	assert.False(t, it.Next())
	require.NoError(t, it.Close())
}

func TestPeekDoesNotConsume(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "peek.spill")
	strat := shuffle.BytesStrategy("message")
	waitSort(t, e.SortToFile(context.Background(), []shuffle.Buffer{bufferOf("a", "1", "b", "2")}, path, strat, false))

	it, err := e.OpenIterator([]string{path}, strat, false)
	require.NoError(t, err)
	defer it.Close()

	p1, ok := it.Peek()
	require.True(t, ok)
	p2, ok := it.Peek()
	require.True(t, ok)
	assert.Equal(t, p1, p2)

	require.True(t, it.Next())
	assert.Equal(t, "a", string(it.Entry().Key))

	p3, ok := it.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", string(p3.Key))
	require.True(t, it.Next())
	assert.Equal(t, "b", string(it.Entry().Key))

	_, ok = it.Peek()
	assert.False(t, ok)
	assert.False(t, it.Next())
}

func TestEngineClosedRejectsWork(t *testing.T) {
	e := NewEngine(1)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close()) // idempotent

	done := e.SortToFile(context.Background(), nil, "x", shuffle.BytesStrategy("message"), false)
	require.ErrorIs(t, <-done, shuffleerrors.ErrEngineClosed)

	err := e.MergeFiles(context.Background(), []string{"a"}, []string{"b"}, shuffle.BytesStrategy("message"), false)
	require.ErrorIs(t, err, shuffleerrors.ErrEngineClosed)
}
