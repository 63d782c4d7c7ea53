package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// pool runs tasks on a fixed set of worker goroutines. Dispatch never
// blocks: each task parks in its own goroutine until a worker accepts it.
type pool struct {
	tasks  chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	size   int

	workers sync.WaitGroup
	parked  sync.WaitGroup

	mu     sync.Mutex
	closed bool

	active  atomic.Int64
	waiting atomic.Int64
}

func newPool(size int) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pool{
		tasks:  make(chan func(context.Context)),
		ctx:    ctx,
		cancel: cancel,
		size:   size,
	}
	for i := 0; i < size; i++ {
		p.workers.Add(1)
		go p.processLoop()
	}
	return p
}

func (p *pool) processLoop() {
	defer p.workers.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			p.active.Add(1)
			task(p.ctx)
			p.active.Add(-1)
		}
	}
}

// dispatch schedules task. If the pool shuts down or cancelled is closed
// before a worker picks the task up, abandon runs instead.
func (p *pool) dispatch(task func(context.Context), abandon func(), cancelled <-chan struct{}) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return core.ErrClientClosed
	}
	p.parked.Add(1)
	p.mu.Unlock()

	p.waiting.Add(1)
	go func() {
		defer p.parked.Done()
		select {
		case p.tasks <- task:
			p.waiting.Add(-1)
		case <-p.ctx.Done():
			p.waiting.Add(-1)
			abandon()
		case <-cancelled:
			p.waiting.Add(-1)
			abandon()
		}
	}()
	return nil
}

// close stops accepting tasks, cancels running ones and waits for every
// worker and parked task to finish.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.parked.Wait()
	p.workers.Wait()
}

// Stats is a point-in-time view of the worker pool.
type Stats struct {
	Workers int
	Active  int
	Waiting int
}

func (p *pool) stats() Stats {
	return Stats{
		Workers: p.size,
		Active:  int(p.active.Load()),
		Waiting: int(p.waiting.Load()),
	}
}
