// Package communicator bridges the background worker that drives one remote
// job and the Job handle callers read from.
//
// The worker is the only producer. It never mutates reader-visible state; it
// sends updates over a bounded channel and a drain goroutine owned by the
// Communicator applies them in arrival order. Readers take copies.
package communicator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// DefaultBufferSize is the capacity of the update channel.
const DefaultBufferSize = 64

// ApplyFunc observes every update after it has been applied. It runs on the
// drain goroutine and must not block.
type ApplyFunc func(status core.StatusUpdate, output core.Output, index int)

type message struct {
	status    core.StatusUpdate
	output    core.Output
	hasOutput bool
}

// Communicator holds the derived state of one job.
type Communicator struct {
	in        chan message
	closeOnce sync.Once
	drained   chan struct{}
	onApply   ApplyFunc

	mu       sync.RWMutex
	latest   core.StatusUpdate
	outputs  []core.Output
	jobID    string
	terminal bool
	changed  chan struct{}

	cancelled atomic.Bool
	cancelReq chan struct{}
	cancelMu  sync.Mutex
	cancelFn  context.CancelFunc
}

// Option configures a Communicator.
type Option func(*Communicator)

// WithBufferSize sets the update channel capacity.
func WithBufferSize(n int) Option {
	return func(c *Communicator) {
		if n > 0 {
			c.in = make(chan message, n)
		}
	}
}

// WithApplyFunc registers an observer for applied updates.
func WithApplyFunc(fn ApplyFunc) Option {
	return func(c *Communicator) {
		c.onApply = fn
	}
}

// New creates a Communicator in STARTING state and starts its drain goroutine.
func New(opts ...Option) *Communicator {
	c := &Communicator{
		in:        make(chan message, DefaultBufferSize),
		drained:   make(chan struct{}),
		latest:    core.StatusUpdate{Code: core.StatusStarting, Time: time.Now()},
		changed:   make(chan struct{}),
		cancelReq: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.drain()
	return c
}

// Update queues a status change. It blocks while the buffer is full and
// returns ctx.Err() if ctx ends first. Producer-only; must not be called
// after Close.
func (c *Communicator) Update(ctx context.Context, status core.StatusUpdate) error {
	return c.send(ctx, message{status: status})
}

// Append queues a status change that carries a new output.
func (c *Communicator) Append(ctx context.Context, status core.StatusUpdate, output core.Output) error {
	return c.send(ctx, message{status: status, output: output, hasOutput: true})
}

func (c *Communicator) send(ctx context.Context, m message) error {
	select {
	case c.in <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the producer's updates. Drained is closed once
// everything sent before Close has been applied.
func (c *Communicator) Close() {
	c.closeOnce.Do(func() {
		close(c.in)
	})
}

// Drained is closed after Close once all queued updates are applied.
func (c *Communicator) Drained() <-chan struct{} {
	return c.drained
}

func (c *Communicator) drain() {
	defer close(c.drained)
	for m := range c.in {
		c.apply(m)
	}
}

func (c *Communicator) apply(m message) {
	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return
	}

	status := m.status.Clone()
	// Server-derived timestamps are not trusted; clamp rather than reject.
	if status.Time.Before(c.latest.Time) {
		status.Time = c.latest.Time
	}
	c.latest = status

	index := -1
	var output core.Output
	if m.hasOutput {
		output = m.output.Clone()
		c.outputs = append(c.outputs, output)
		index = len(c.outputs) - 1
	}
	if status.Code.IsTerminal() {
		c.terminal = true
	}

	close(c.changed)
	c.changed = make(chan struct{})
	onApply := c.onApply
	c.mu.Unlock()

	if onApply != nil {
		onApply(status.Clone(), output.Clone(), index)
	}
}

// SnapshotStatus returns a copy of the latest applied status.
func (c *Communicator) SnapshotStatus() core.StatusUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest.Clone()
}

// SnapshotOutputs returns a copy of every output applied so far.
func (c *Communicator) SnapshotOutputs() []core.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Output, len(c.outputs))
	for i, o := range c.outputs {
		out[i] = o.Clone()
	}
	return out
}

// OutputsSince returns outputs from index i on, together with a channel that
// is closed on the next state change. Reading both under one lock means a
// waiter cannot miss an update that lands between the two.
func (c *Communicator) OutputsSince(i int) ([]core.Output, <-chan struct{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	var out []core.Output
	if i < len(c.outputs) {
		out = make([]core.Output, 0, len(c.outputs)-i)
		for _, o := range c.outputs[i:] {
			out = append(out, o.Clone())
		}
	}
	return out, c.changed
}

// Changed returns a channel closed on the next applied update.
func (c *Communicator) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Terminal reports whether FINISHED or CANCELLED has been applied.
func (c *Communicator) Terminal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminal
}

// SetJobID records the server-assigned event id.
func (c *Communicator) SetJobID(id string) {
	c.mu.Lock()
	c.jobID = id
	c.mu.Unlock()
}

// JobID returns the server-assigned event id, or "" before submission.
func (c *Communicator) JobID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobID
}

// SetCancelFunc binds the cancel function of the worker's context. If
// cancellation was already requested, fn is called immediately.
func (c *Communicator) SetCancelFunc(fn context.CancelFunc) {
	c.cancelMu.Lock()
	c.cancelFn = fn
	c.cancelMu.Unlock()
	if c.cancelled.Load() && fn != nil {
		fn()
	}
}

// RequestCancel sets the cancel flag and aborts the worker's in-flight I/O.
// It returns false if cancellation had already been requested. The flag is
// never reset.
func (c *Communicator) RequestCancel() bool {
	if !c.cancelled.CompareAndSwap(false, true) {
		return false
	}
	close(c.cancelReq)
	c.cancelMu.Lock()
	fn := c.cancelFn
	c.cancelMu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// CancelRequested returns a channel closed by the first RequestCancel.
func (c *Communicator) CancelRequested() <-chan struct{} {
	return c.cancelReq
}

// ShouldCancel reports whether cancellation has been requested.
func (c *Communicator) ShouldCancel() bool {
	return c.cancelled.Load()
}
