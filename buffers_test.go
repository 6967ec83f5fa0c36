package shuffle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shuffleerrors "github.com/graphtide/shuffle/errors"
)

func TestBuffersAccumulation(t *testing.T) {
	b := NewBuffers(100, time.Second)

	assert.False(t, b.Full())
	assert.EqualValues(t, 0, b.TotalBytes())

	b.Add(make(Buffer, 40))
	b.Add(make(Buffer, 40))
	assert.False(t, b.Full())
	assert.EqualValues(t, 80, b.TotalBytes())

	b.Add(make(Buffer, 40))
	assert.True(t, b.Full())
	assert.EqualValues(t, 120, b.TotalBytes())
}

func TestBuffersTakeResets(t *testing.T) {
	b := NewBuffers(100, time.Second)
	b.Add(make(Buffer, 30))
	b.Add(make(Buffer, 30))

	bufs := b.Take()
	require.Len(t, bufs, 2)
	assert.EqualValues(t, 0, b.TotalBytes())
	assert.False(t, b.Full())

	// The collection receives again while the taken contents drain.
	b.Add(make(Buffer, 10))
	assert.EqualValues(t, 10, b.TotalBytes())
}

func TestBuffersWaitWithoutFlushReturnsImmediately(t *testing.T) {
	b := NewBuffers(100, time.Millisecond)
	require.NoError(t, b.WaitFlushed(context.Background()))
}

func TestBuffersWaitTimesOut(t *testing.T) {
	b := NewBuffers(100, 20*time.Millisecond)
	b.Add(make(Buffer, 10))
	b.Take()

	err := b.WaitFlushed(context.Background())
	require.ErrorIs(t, err, shuffleerrors.ErrFlushTimeout)
}

func TestBuffersSignalWakesWaiter(t *testing.T) {
	b := NewBuffers(100, time.Minute)
	b.Add(make(Buffer, 10))
	b.Take()

	waited := make(chan error, 1)
	go func() {
		waited <- b.WaitFlushed(context.Background())
	}()

	b.SignalFlushed()
	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by SignalFlushed")
	}

	// Signaling outside a draining cycle is a no-op.
	b.SignalFlushed()
	require.NoError(t, b.WaitFlushed(context.Background()))
}

func TestBuffersWaitHonorsContext(t *testing.T) {
	b := NewBuffers(100, time.Minute)
	b.Add(make(Buffer, 10))
	b.Take()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.WaitFlushed(ctx), context.Canceled)
}
