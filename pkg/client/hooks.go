package client

import (
	"context"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
)

// OnJobSubmit registers a callback run after a job is handed to the pool.
func (c *Client) OnJobSubmit(fn func(context.Context, *job.Job)) {
	c.hookMu.Lock()
	c.onSubmit = append(c.onSubmit, fn)
	c.hookMu.Unlock()
}

// OnJobComplete registers a callback for jobs that finish successfully.
func (c *Client) OnJobComplete(fn func(context.Context, *job.Job)) {
	c.hookMu.Lock()
	c.onComplete = append(c.onComplete, fn)
	c.hookMu.Unlock()
}

// OnJobFail registers a callback for jobs that end with an error other than
// cancellation.
func (c *Client) OnJobFail(fn func(context.Context, *job.Job, error)) {
	c.hookMu.Lock()
	c.onFail = append(c.onFail, fn)
	c.hookMu.Unlock()
}

// OnJobCancel registers a callback for cancelled jobs.
func (c *Client) OnJobCancel(fn func(context.Context, *job.Job)) {
	c.hookMu.Lock()
	c.onCancel = append(c.onCancel, fn)
	c.hookMu.Unlock()
}

// OnStatus registers a callback for every applied status update. It runs on
// the job's update goroutine and must return quickly.
func (c *Client) OnStatus(fn func(*job.Job, core.StatusUpdate)) {
	c.hookMu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.hookMu.Unlock()
}

// Events returns a channel for receiving client events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (c *Client) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	c.hookMu.Lock()
	c.eventSubs = append(c.eventSubs, ch)
	c.hookMu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Events. The channel is not closed.
func (c *Client) Unsubscribe(ch <-chan core.Event) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	for i, sub := range c.eventSubs {
		if sub == ch {
			c.eventSubs = append(c.eventSubs[:i], c.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends e to every subscriber. Full subscribers miss the event.
func (c *Client) Emit(e core.Event) {
	c.hookMu.RLock()
	subs := make([]chan core.Event, len(c.eventSubs))
	copy(subs, c.eventSubs)
	c.hookMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (c *Client) callSubmitHooks(ctx context.Context, j *job.Job) {
	c.hookMu.RLock()
	hooks := make([]func(context.Context, *job.Job), len(c.onSubmit))
	copy(hooks, c.onSubmit)
	c.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, j)
	}
}

func (c *Client) callCompleteHooks(ctx context.Context, j *job.Job) {
	c.hookMu.RLock()
	hooks := make([]func(context.Context, *job.Job), len(c.onComplete))
	copy(hooks, c.onComplete)
	c.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, j)
	}
}

func (c *Client) callFailHooks(ctx context.Context, j *job.Job, err error) {
	c.hookMu.RLock()
	hooks := make([]func(context.Context, *job.Job, error), len(c.onFail))
	copy(hooks, c.onFail)
	c.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, j, err)
	}
}

func (c *Client) callCancelHooks(ctx context.Context, j *job.Job) {
	c.hookMu.RLock()
	hooks := make([]func(context.Context, *job.Job), len(c.onCancel))
	copy(hooks, c.onCancel)
	c.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, j)
	}
}

func (c *Client) callStatusHooks(j *job.Job, st core.StatusUpdate) {
	c.hookMu.RLock()
	hooks := make([]func(*job.Job, core.StatusUpdate), len(c.onStatus))
	copy(hooks, c.onStatus)
	c.hookMu.RUnlock()

	for _, fn := range hooks {
		fn(j, st)
	}
}
