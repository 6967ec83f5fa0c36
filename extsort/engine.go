// Package extsort provides the default sorting engine for shuffle
// partitions: asynchronous sort-to-file execution on a fixed worker pool,
// blocking k-way merges of sorted spill files, and peekable iterators over
// the result. Ordering always comes from the strategy injected per record
// kind; the engine never hard-codes a comparator.
package extsort

import (
	"context"
	"runtime"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/graphtide/shuffle"
	shuffleerrors "github.com/graphtide/shuffle/errors"
	"github.com/graphtide/shuffle/internal/kvfile"
)

// taskQueueMultiplier sizes the task channel relative to the worker count.
const taskQueueMultiplier = 2

// Engine implements shuffle.Sorter. One engine is shared by every partition
// of a worker; sorts from different partitions run concurrently on the pool.
type Engine struct {
	tasks  chan func()
	pool   *errgroup.Group
	log    *zap.SugaredLogger
	closed atomic.Bool
}

var _ shuffle.Sorter = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine starts an engine with the given number of sort workers.
// workers <= 0 means one worker per CPU.
func NewEngine(workers int, opts ...Option) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Engine{
		tasks: make(chan func(), workers*taskQueueMultiplier),
		pool:  &errgroup.Group{},
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := 0; i < workers; i++ {
		e.pool.Go(func() error {
			for task := range e.tasks {
				task()
			}
			return nil
		})
	}
	return e
}

// Close shuts the worker pool down after draining queued tasks. The caller
// must not submit new sorts after, or concurrently with, Close; partitions
// must be finalized first.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.tasks)
	return e.pool.Wait()
}

// SortToFile submits an asynchronous sort of the given buffers to path. The
// returned channel delivers exactly one result and is then closed. When the
// queue is saturated the task runs on its own goroutine, so submission never
// blocks the receiving thread.
func (e *Engine) SortToFile(ctx context.Context, bufs []shuffle.Buffer, path string, strat shuffle.Strategy, subKV bool) <-chan error {
	done := make(chan error, 1)
	if e.closed.Load() {
		done <- shuffleerrors.ErrEngineClosed
		close(done)
		return done
	}
	task := func() {
		done <- e.sortToFile(ctx, bufs, path, strat, subKV)
		close(done)
	}
	select {
	case e.tasks <- task:
	default:
		go task()
	}
	return done
}

// AppendEntry appends one length-prefixed key/value entry to dst, the
// framing the engine expects inside received buffers. The network layer
// uses it to serialize records.
func AppendEntry(dst, key, value []byte) []byte {
	return kvfile.AppendEntry(dst, key, value)
}
