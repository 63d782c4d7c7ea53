package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/communicator"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/jobctx"
	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
)

var errStreamClosed = errors.New("stream closed before completion")

// task is everything the worker needs to drive one job.
type task struct {
	id          string
	ep          *endpoint.Endpoint
	args        []any
	argsJSON    []byte
	session     string
	submittedAt time.Time

	comm    *communicator.Communicator
	job     *job.Job
	resolve job.ResolveFunc
}

// run drives a job from submission to a terminal state. It is the only
// producer for the job's communicator.
func (c *Client) run(poolCtx context.Context, t *task) {
	ctx, cancel := context.WithCancel(poolCtx)
	defer cancel()
	ctx = jobctx.WithJob(ctx, jobctx.Info{JobID: t.id, APIName: t.ep.Name(), SessionHash: t.session})
	t.comm.SetCancelFunc(cancel)
	logger := jobctx.Logger(ctx, c.logger)

	startedAt := time.Now()
	out, err := c.execute(ctx, t)

	// hooks and history must still run after the job context is cancelled
	hookCtx := context.WithoutCancel(ctx)
	cancelled := err != nil && (t.comm.ShouldCancel() || poolCtx.Err() != nil)

	switch {
	case cancelled:
		err = core.ErrCancelled
		_ = t.comm.Update(hookCtx, core.StatusUpdate{Code: core.StatusCancelled, Time: time.Now()})
	case err != nil:
		failed := false
		_ = t.comm.Update(hookCtx, core.StatusUpdate{Code: core.StatusFinished, Time: time.Now(), Success: &failed})
	}

	t.comm.Close()
	<-t.comm.Drained()
	t.resolve(out, err)

	switch {
	case cancelled:
		logger.Debug("job cancelled")
		// best-effort; the job is already resolved
		if eventID := t.comm.JobID(); eventID != "" && c.config.CancelGracePeriod > 0 {
			resetCtx, resetCancel := context.WithTimeout(hookCtx, c.config.CancelGracePeriod)
			if rerr := c.reset(resetCtx, t.session, eventID); rerr != nil {
				logger.Warn("cancel request failed", "event_id", eventID, "error", rerr)
			}
			resetCancel()
		}
		c.callCancelHooks(hookCtx, t.job)
		c.Emit(&core.JobCancelled{JobID: t.id, APIName: t.ep.Name(), EventID: t.comm.JobID(), Timestamp: time.Now()})
	case err != nil:
		logger.Debug("job failed", "error", err)
		c.callFailHooks(hookCtx, t.job, err)
		c.Emit(&core.JobFailed{JobID: t.id, APIName: t.ep.Name(), Error: err, Timestamp: time.Now()})
	default:
		logger.Debug("job completed", "duration", time.Since(startedAt))
		c.callCompleteHooks(hookCtx, t.job)
		c.Emit(&core.JobCompleted{JobID: t.id, APIName: t.ep.Name(), Duration: time.Since(startedAt), Timestamp: time.Now()})
	}
	c.recordFinished(hookCtx, t, startedAt, out, err)
}

// abandon resolves a job the pool shut down before it started.
func (c *Client) abandon(t *task) {
	ctx := context.Background()
	_ = t.comm.Update(ctx, core.StatusUpdate{Code: core.StatusCancelled, Time: time.Now()})
	t.comm.Close()
	<-t.comm.Drained()
	t.resolve(nil, core.ErrCancelled)

	c.callCancelHooks(ctx, t.job)
	c.Emit(&core.JobCancelled{JobID: t.id, APIName: t.ep.Name(), Timestamp: time.Now()})
	c.recordFinished(ctx, t, time.Time{}, nil, core.ErrCancelled)
}

func (c *Client) execute(ctx context.Context, t *task) (core.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	codec := t.ep.GetCodec()
	data, err := codec.Serialize(t.args)
	if err != nil {
		return nil, fmt.Errorf("jobs: serialize arguments: %w", err)
	}

	if err := t.comm.Update(ctx, core.StatusUpdate{Code: core.StatusSendingData, Time: time.Now()}); err != nil {
		return nil, err
	}

	req := &protocol.SubmitRequest{
		Data:        data,
		SessionHash: t.session,
	}
	if t.ep.APIName == "" {
		req.FnIndex = t.ep.FnIndex
	}

	var resp *protocol.SubmitResponse
	err = retryWithBackoff(ctx, c.config.SubmitRetry, func() error {
		r, err := c.submit(ctx, t.ep.Path(), req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, err error) {
		jobctx.Logger(ctx, c.logger).Warn("submission failed, retrying", "attempt", attempt, "error", err)
		c.Emit(&core.SubmitRetrying{JobID: t.id, Attempt: attempt, Error: err, Timestamp: time.Now()})
	})
	if err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, &core.RemoteError{Message: resp.Error}
	}

	if !resp.Queued() {
		if resp.Data == nil {
			return nil, &core.ProtocolError{Msg: "response carries neither data nor event_id"}
		}
		out, err := codec.Deserialize(resp.Data)
		if err != nil {
			return nil, &core.ProtocolError{Msg: "deserialize result", Err: err}
		}
		success := true
		st := core.StatusUpdate{Code: core.StatusFinished, Time: time.Now(), Success: &success}
		if err := t.comm.Append(ctx, st, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	t.comm.SetJobID(resp.EventID)
	return c.stream(ctx, t, codec, resp.EventID)
}

// stream follows the event stream for eventID until the job completes.
func (c *Client) stream(ctx context.Context, t *task, codec endpoint.Codec, eventID string) (core.Output, error) {
	body, err := c.openStream(ctx, t.session, eventID)
	if err != nil {
		return nil, err
	}
	// closing the body is what unblocks a read on cancel
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()
	defer body.Close()

	dec := protocol.NewDecoder(body)
	generated := 0
	for {
		msg, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil, &core.ConnectionError{Op: "GET", URL: protocol.PathQueueData, Err: errStreamClosed}
			}
			var perr *core.ProtocolError
			if errors.As(err, &perr) {
				return nil, err
			}
			return nil, &core.ConnectionError{Op: "GET", URL: protocol.PathQueueData, Err: err}
		}

		if msg.Ignored() {
			continue
		}
		if msg.EventID != "" && msg.EventID != eventID {
			continue
		}

		if ferr := msg.Err(); ferr != nil {
			if errors.Is(ferr, core.ErrQueueFull) {
				st, _ := msg.Status(time.Now())
				if err := t.comm.Update(ctx, st); err != nil {
					return nil, err
				}
			}
			return nil, ferr
		}

		st, err := msg.Status(time.Now())
		if err != nil {
			return nil, err
		}

		switch st.Code {
		case core.StatusIterating:
			out, err := decodeOutput(codec, msg)
			if err != nil {
				return nil, err
			}
			if err := t.comm.Append(ctx, st, out); err != nil {
				return nil, err
			}
			generated++

		case core.StatusFinished:
			out, err := decodeOutput(codec, msg)
			if err != nil {
				return nil, err
			}
			// a generator's final payload repeats its last yield
			if generated == 0 {
				err = t.comm.Append(ctx, st, out)
			} else {
				err = t.comm.Update(ctx, st)
			}
			if err != nil {
				return nil, err
			}
			return out, nil

		default:
			if err := t.comm.Update(ctx, st); err != nil {
				return nil, err
			}
		}
	}
}

func decodeOutput(codec endpoint.Codec, msg *protocol.Message) (core.Output, error) {
	if msg.Output == nil {
		if msg.Msg == protocol.MsgProcessGenerating {
			return nil, &core.ProtocolError{Msg: "generating message without output"}
		}
		return core.Output{}, nil
	}
	data := msg.Output.Data
	if data == nil {
		data = []any{}
	}
	out, err := codec.Deserialize(data)
	if err != nil {
		return nil, &core.ProtocolError{Msg: "deserialize output", Err: err}
	}
	return out, nil
}

// observe forwards applied updates to events and status hooks.
func (c *Client) observe(t *task) communicator.ApplyFunc {
	return func(st core.StatusUpdate, out core.Output, index int) {
		now := time.Now()
		c.Emit(&core.JobStatusChanged{JobID: t.id, APIName: t.ep.Name(), Status: st, Timestamp: now})
		if index >= 0 {
			c.Emit(&core.JobOutput{JobID: t.id, Index: index, Output: out, Timestamp: now})
		}
		c.callStatusHooks(t.job, st)
	}
}
