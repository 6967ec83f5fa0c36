package shuffle

import (
	"context"
	"fmt"
	"sync"
	"time"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

// Buffers is an ordered in-memory collection of received buffers with a
// byte-capacity signal and a wait/signal handshake covering one flush cycle.
//
// Add, Full, TotalBytes and Take are not internally synchronized against
// concurrent callers: the owning Partition guarantees a single writer at a
// time. WaitFlushed and SignalFlushed may race with each other and with the
// flush completion goroutine, so the handshake state is mutex-guarded.
type Buffers struct {
	capacity int64
	timeout  time.Duration

	bufs  []Buffer
	total int64

	mu        sync.Mutex
	flushDone chan struct{} // non-nil while a flush of Take()'s contents is in flight
}

// NewBuffers creates a collection that reports Full once the cumulative byte
// count reaches capacity. timeout bounds WaitFlushed.
func NewBuffers(capacity int64, timeout time.Duration) *Buffers {
	return &Buffers{
		capacity: capacity,
		timeout:  timeout,
	}
}

// Add appends a buffer and grows the byte total. Single writer only.
func (b *Buffers) Add(buf Buffer) {
	b.bufs = append(b.bufs, buf)
	b.total += int64(len(buf))
}

// Full reports whether the byte total has reached the configured capacity.
func (b *Buffers) Full() bool {
	return b.total >= b.capacity
}

// TotalBytes returns the cumulative byte count currently held.
func (b *Buffers) TotalBytes() int64 {
	return b.total
}

// Take hands the held buffer sequence to the caller and replaces it with a
// fresh one. After Take the collection is considered draining until
// SignalFlushed is called; the returned slice belongs to the sorting engine
// for the duration of the flush.
func (b *Buffers) Take() []Buffer {
	bufs := b.bufs
	b.bufs = nil
	b.total = 0

	b.mu.Lock()
	b.flushDone = make(chan struct{})
	b.mu.Unlock()
	return bufs
}

// WaitFlushed blocks until SignalFlushed has been called for the current
// draining cycle, the configured timeout elapses, or ctx is done. Returns
// immediately when no flush is in flight. A timeout is fatal: silently
// continuing would let unbounded memory pile up behind a lost flush.
func (b *Buffers) WaitFlushed(ctx context.Context) error {
	b.mu.Lock()
	done := b.flushDone
	b.mu.Unlock()
	if done == nil {
		return nil
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: waited %s", shuffleerrors.ErrFlushTimeout, b.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignalFlushed wakes every waiter of the current draining cycle. It must be
// called exactly once per cycle, even when the underlying flush failed, so
// no waiter blocks forever. Extra calls outside a cycle are no-ops.
func (b *Buffers) SignalFlushed() {
	b.mu.Lock()
	if b.flushDone != nil {
		close(b.flushDone)
		b.flushDone = nil
	}
	b.mu.Unlock()
}
