// Package job provides the Job handle returned for every submission.
//
// A Job is both a future (Done, Result, Wait) and an iterator over the
// partial outputs a generating endpoint streams back. Both views read the
// same Communicator state, so they never disagree.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/communicator"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// ResolveFunc completes a Job. Only the first call has any effect.
type ResolveFunc func(output core.Output, err error)

// Job is the caller-facing handle for one remote invocation.
type Job struct {
	id        string
	apiName   string
	createdAt time.Time
	comm      *communicator.Communicator

	done   chan struct{}
	once   sync.Once
	result core.Output
	err    error

	iterMu sync.Mutex
	iter   *Iterator
}

// New creates a Job over comm and returns the function that resolves it.
// The resolver must be called only after comm has drained so that Done
// implies every output is visible.
func New(id, apiName string, comm *communicator.Communicator) (*Job, ResolveFunc) {
	j := &Job{
		id:        id,
		apiName:   apiName,
		createdAt: time.Now(),
		comm:      comm,
		done:      make(chan struct{}),
	}
	j.iter = j.Iter()
	return j, j.resolve
}

func (j *Job) resolve(output core.Output, err error) {
	j.once.Do(func() {
		j.result = output.Clone()
		j.err = err
		close(j.done)
	})
}

// ID returns the client-assigned job id.
func (j *Job) ID() string {
	return j.id
}

// APIName returns the endpoint the job was submitted to.
func (j *Job) APIName() string {
	return j.apiName
}

// EventID returns the id the remote queue assigned, or "" if the job was not
// queued (yet).
func (j *Job) EventID() string {
	return j.comm.JobID()
}

// CreatedAt returns when the job was submitted.
func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

// Done reports whether the job reached a terminal state or failed.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// DoneChan is closed when the job completes.
func (j *Job) DoneChan() <-chan struct{} {
	return j.done
}

// Status returns the latest status. It never blocks.
func (j *Job) Status() core.StatusUpdate {
	return j.comm.SnapshotStatus()
}

// Outputs returns every output received so far. It never blocks.
func (j *Job) Outputs() []core.Output {
	return j.comm.SnapshotOutputs()
}

// Result blocks until the job completes or ctx ends.
//
// A ctx deadline yields core.ErrTimeout; the job keeps running. A cancelled
// job yields core.ErrCancelled, a failed one the worker's error.
func (j *Job) Result(ctx context.Context) (core.Output, error) {
	select {
	case <-j.done:
		return j.outcome()
	case <-ctx.Done():
		return nil, waitErr(ctx)
	}
}

// Wait is Result with a timeout. A timeout <= 0 waits forever.
func (j *Job) Wait(timeout time.Duration) (core.Output, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return j.Result(ctx)
}

// Err returns the job's error once done, nil otherwise.
func (j *Job) Err() error {
	if !j.Done() {
		return nil
	}
	return j.err
}

func (j *Job) outcome() (core.Output, error) {
	if j.err != nil {
		return nil, j.err
	}
	return j.result.Clone(), nil
}

// Cancel requests cancellation. The worker's network read is aborted and a
// best-effort cancel request is sent to the remote queue; the remote
// computation may still run to completion. Cancel returns false if the job
// had already completed or cancellation was already requested.
func (j *Job) Cancel() bool {
	if j.Done() {
		return false
	}
	return j.comm.RequestCancel()
}

// Next returns the next output from the job's built-in iterator. The built-in
// iterator is shared and not restartable: once exhausted it keeps returning
// io.EOF (or the job's error).
func (j *Job) Next(ctx context.Context) (core.Output, error) {
	j.iterMu.Lock()
	defer j.iterMu.Unlock()
	return j.iter.Next(ctx)
}

// All ranges over the built-in iterator. A normal finish ends the sequence;
// a failure is yielded as the final error.
func (j *Job) All(ctx context.Context) iter.Seq2[core.Output, error] {
	return func(yield func(core.Output, error) bool) {
		for {
			out, err := j.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

// Iter returns a new independent cursor positioned at the first output.
func (j *Job) Iter() *Iterator {
	return &Iterator{job: j}
}

// Iterator walks a job's outputs in arrival order.
type Iterator struct {
	job *Job
	pos int
}

// Next blocks until an output this iterator has not returned is available,
// the job ends, or ctx ends. It returns io.EOF after a normal finish and the
// job's error after a failure or cancellation.
func (it *Iterator) Next(ctx context.Context) (core.Output, error) {
	for {
		outs, changed := it.job.comm.OutputsSince(it.pos)
		if len(outs) > 0 {
			it.pos++
			return outs[0], nil
		}

		select {
		case <-it.job.done:
			// resolve happens after drain, so nothing new can arrive
			if outs, _ := it.job.comm.OutputsSince(it.pos); len(outs) > 0 {
				it.pos++
				return outs[0], nil
			}
			if it.job.err != nil {
				return nil, it.job.err
			}
			return nil, io.EOF
		case <-changed:
		case <-ctx.Done():
			return nil, waitErr(ctx)
		}
	}
}

// Position returns how many outputs the iterator has returned.
func (it *Iterator) Position() int {
	return it.pos
}

// ResultAs waits for the job and decodes result element index into T.
func ResultAs[T any](ctx context.Context, j *Job, index int) (T, error) {
	var zero T

	out, err := j.Result(ctx)
	if err != nil {
		return zero, err
	}
	return Decode[T](out, index)
}

// Decode converts element index of an output into T.
func Decode[T any](out core.Output, index int) (T, error) {
	var zero T
	if index < 0 || index >= len(out) {
		return zero, fmt.Errorf("jobs: output index %d out of range (len %d)", index, len(out))
	}
	if v, ok := out[index].(T); ok {
		return v, nil
	}
	b, err := json.Marshal(out[index])
	if err != nil {
		return zero, fmt.Errorf("failed to marshal output: %w", err)
	}
	var result T
	if err := json.Unmarshal(b, &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return result, nil
}

func waitErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrTimeout
	}
	return ctx.Err()
}
