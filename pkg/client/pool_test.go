package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

func TestPool_RunsTasks(t *testing.T) {
	p := newPool(4)
	defer p.close()

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.dispatch(func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}, func() { wg.Done() }, nil))
	}
	wg.Wait()
	assert.Equal(t, int32(20), ran.Load())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := newPool(2)
	defer p.close()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, p.dispatch(func(context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}, func() { wg.Done() }, nil))
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_DispatchNeverBlocks(t *testing.T) {
	p := newPool(1)
	defer p.close()

	gate := make(chan struct{})
	for i := 0; i < 50; i++ {
		require.NoError(t, p.dispatch(func(context.Context) { <-gate }, func() {}, nil))
	}
	require.Eventually(t, func() bool {
		s := p.stats()
		return s.Active == 1 && s.Waiting == 49
	}, time.Second, time.Millisecond)
	close(gate)
}

func TestPool_CloseAbandonsWaitingTasks(t *testing.T) {
	p := newPool(1)

	started := make(chan struct{})
	var cancelledRunning atomic.Bool
	require.NoError(t, p.dispatch(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelledRunning.Store(true)
	}, func() {}, nil))
	<-started

	var abandoned atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, p.dispatch(func(ctx context.Context) {
			// a worker may still pick this up after shutdown; ctx is done
			if ctx.Err() != nil {
				abandoned.Add(1)
			}
		}, func() { abandoned.Add(1) }, nil))
	}

	p.close()
	assert.True(t, cancelledRunning.Load())
	assert.Equal(t, int32(3), abandoned.Load())

	err := p.dispatch(func(context.Context) {}, func() {}, nil)
	assert.ErrorIs(t, err, core.ErrClientClosed)
	p.close()
}

func TestPool_CancelledWhileWaiting(t *testing.T) {
	p := newPool(1)
	defer p.close()

	gate := make(chan struct{})
	defer close(gate)
	require.NoError(t, p.dispatch(func(context.Context) { <-gate }, func() {}, nil))

	cancel := make(chan struct{})
	abandoned := make(chan struct{})
	var ran atomic.Bool
	require.NoError(t, p.dispatch(func(context.Context) { ran.Store(true) }, func() { close(abandoned) }, cancel))

	close(cancel)
	select {
	case <-abandoned:
	case <-time.After(time.Second):
		t.Fatal("waiting task was not abandoned")
	}
	assert.False(t, ran.Load())
	assert.Equal(t, 0, p.stats().Waiting)
}
