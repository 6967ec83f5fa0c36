package shuffle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

// Partition manages the buffers received for one (superstep, partition,
// record kind) and the spill files generated by sorting those buffers to
// disk. It owns two Buffers collections in rotating roles: one receives
// while the other drains to disk, so the network thread is never stalled by
// a flush.
//
// Exactly one producer goroutine may call AddBuffer. Iterator freezes the
// partition: after it has been called, no further buffers are accepted.
type Partition struct {
	ctx    context.Context
	cfg    *config
	strat  Strategy
	sorter Sorter
	paths  PathAllocator
	log    *zap.SugaredLogger

	// mu serializes AddBuffer/Iterator and makes the role swap atomic with
	// respect to flush submissions.
	mu        sync.Mutex
	recv      *Buffers // active receiver
	flushing  *Buffers // counterpart, drained by the last submitted flush
	spills    []string // append-only until consolidation replaces it
	finalized bool

	totalBytes atomic.Int64

	// firstErr retains the first flush failure only; later failures are
	// dropped so the root cause is never masked. Once set it is never
	// cleared: the partition is permanently poisoned.
	firstErr atomic.Pointer[error]
}

// NewPartition creates a partition controller for one record kind. The
// sorter and path allocator are shared collaborators; strat supplies the
// record-type tag and key ordering.
func NewPartition(ctx context.Context, strat Strategy, sorter Sorter, paths PathAllocator, opts ...Option) *Partition {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Partition{
		ctx:      ctx,
		cfg:      cfg,
		strat:    strat,
		sorter:   sorter,
		paths:    paths,
		log:      cfg.log,
		recv:     NewBuffers(cfg.bufferCapacity, cfg.flushTimeout),
		flushing: NewBuffers(cfg.bufferCapacity, cfg.flushTimeout),
	}
}

// AddBuffer accepts one received buffer. When appending it would push the
// active collection to its byte budget, AddBuffer first waits for the
// previous flush of the counterpart collection to land (back-pressure: the
// two roles never drain concurrently), then swaps the roles, submits an
// asynchronous sort of the accumulated collection to a freshly allocated
// spill path, and seeds the fresh receiver with the incoming buffer.
//
// Returns ErrPartitionFinalized once Iterator has been called, and a
// poisoned-partition error after any flush has failed.
func (p *Partition) AddBuffer(buf Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finalized {
		return shuffleerrors.ErrPartitionFinalized
	}
	if err := p.checkPoisoned(); err != nil {
		return err
	}

	// The budget check runs before the append so the buffer that tips the
	// total over capacity lands in the fresh receiver, not in the
	// collection being swapped out for flushing.
	if p.recv.TotalBytes() > 0 && p.recv.TotalBytes()+int64(len(buf)) >= p.cfg.bufferCapacity {
		if err := p.flushing.WaitFlushed(p.ctx); err != nil {
			return err
		}
		p.recv, p.flushing = p.flushing, p.recv
		if err := p.submitFlush(p.flushing); err != nil {
			return err
		}
	}

	p.totalBytes.Add(int64(len(buf)))
	p.recv.Add(buf)
	return nil
}

// Iterator flushes whatever is still buffered, waits for every in-flight
// sort, consolidates the spill files if more than one exists, and returns a
// peekable iterator yielding all entries in a single global order. It is the
// terminal operation: the partition accepts no buffers afterwards.
//
// A recorded flush failure is surfaced here, wrapped with context, before
// anything is returned. With zero spill files the result is an explicitly
// empty iterator, never nil.
func (p *Partition) Iterator() (PeekableIterator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finalized = true
	if err := p.drainAll(); err != nil {
		return nil, err
	}
	if err := p.checkPoisoned(); err != nil {
		return nil, err
	}
	if err := p.consolidateSpills(); err != nil {
		return nil, err
	}
	if len(p.spills) == 0 {
		return EmptyIterator(), nil
	}
	return p.sorter.OpenIterator(p.spills, p.strat, p.cfg.subKV)
}

// TotalBytes returns the number of bytes ever accepted by AddBuffer,
// independent of where they ended up. Valid at any time.
func (p *Partition) TotalBytes() int64 {
	return p.totalBytes.Load()
}

// Stats returns a read-only snapshot of the partition. See Stats for why
// RecordCount is always zero.
func (p *Partition) Stats() Stats {
	return Stats{
		RecordCount: 0,
		TotalBytes:  p.totalBytes.Load(),
	}
}

// drainAll flushes the receiver collection if it holds unflushed bytes and
// waits for both collections to finish sorting.
func (p *Partition) drainAll() error {
	if err := p.flushing.WaitFlushed(p.ctx); err != nil {
		return err
	}
	if p.recv.TotalBytes() > 0 {
		if err := p.submitFlush(p.recv); err != nil {
			return err
		}
	}
	return p.recv.WaitFlushed(p.ctx)
}

// submitFlush allocates a spill path and hands the collection's contents to
// the sorting engine. The completion handler runs on its own goroutine so
// submission never blocks the producer.
func (p *Partition) submitFlush(b *Buffers) error {
	if err := p.checkPoisoned(); err != nil {
		return err
	}
	path, err := p.paths.NextPath(p.strat.Kind())
	if err != nil {
		return fmt.Errorf("allocate spill path: %w", err)
	}
	bufs := b.Take()
	done := p.sorter.SortToFile(p.ctx, bufs, path, p.strat, p.cfg.subKV)
	p.spills = append(p.spills, path)
	go p.completeFlush(b, path, done)
	return nil
}

// completeFlush records the first observed failure, then unconditionally
// signals the collection as flushed. Both steps run on every outcome:
// skipping the signal would leave a WaitFlushed caller blocked forever.
func (p *Partition) completeFlush(b *Buffers, path string, done <-chan error) {
	if err := <-done; err != nil {
		p.log.Errorw("Failed to sort spill file", zap.String("path", path), zap.Error(err))
		p.firstErr.CompareAndSwap(nil, &err)
	}
	b.SignalFlushed()
}

// consolidateSpills merges the spill files into a bounded set of outputs,
// replacing the spill list wholesale.
func (p *Partition) consolidateSpills() error {
	if len(p.spills) <= 1 {
		return nil
	}

	// The engine cannot iterate sub-key entries spread across multiple
	// files, so the configured fan-in is overridden and consolidation
	// always produces a single output. See WithMergeFanIn.
	const fanIn = 1

	outputs := make([]string, 0, fanIn)
	for i := 0; i < fanIn; i++ {
		path, err := p.paths.NextPath(p.strat.Kind())
		if err != nil {
			return fmt.Errorf("allocate merge output path: %w", err)
		}
		outputs = append(outputs, path)
	}
	if err := p.sorter.MergeFiles(p.ctx, p.spills, outputs, p.strat, p.cfg.subKV); err != nil {
		return fmt.Errorf("consolidate %d spill files: %w", len(p.spills), err)
	}
	p.spills = outputs
	return nil
}

func (p *Partition) checkPoisoned() error {
	if ep := p.firstErr.Load(); ep != nil {
		return fmt.Errorf("%w: %w", shuffleerrors.ErrPartitionPoisoned, *ep)
	}
	return nil
}
