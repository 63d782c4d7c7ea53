package client

import (
	"context"
	"errors"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/schedule"
)

// Every submits ep with args each time sched fires, passing each Job to fn,
// until ctx ends or the client closes. Failed submissions are logged and
// skipped. Every blocks; it returns ctx.Err() or core.ErrClientClosed.
func (c *Client) Every(ctx context.Context, sched schedule.Schedule, ep *endpoint.Endpoint, args []any, fn func(*job.Job)) error {
	next := sched.Next(time.Now())
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.pool.ctx.Done():
			timer.Stop()
			return core.ErrClientClosed
		case fired := <-timer.C:
			j, err := c.Submit(ctx, ep, args...)
			switch {
			case errors.Is(err, core.ErrClientClosed):
				return err
			case err != nil:
				c.logger.Error("scheduled submission failed", "api_name", ep.Name(), "error", err)
			case fn != nil:
				fn(j)
			}
			next = sched.Next(fired)
			if now := time.Now(); next.Before(now) {
				next = sched.Next(now)
			}
		}
	}
}
