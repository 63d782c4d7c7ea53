package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
)

// FanOut submits every call, waits for the jobs and applies the strategy.
// Results are ordered like calls. With FailFast the first failure cancels
// the jobs still running.
func FanOut(ctx context.Context, s Submitter, calls []Call, opts ...Option) ([]Result[core.Output], error) {
	if len(calls) == 0 {
		return nil, nil
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	if cfg.totalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.totalTimeout)
		defer cancel()
	}

	results := make([]Result[core.Output], len(calls))
	jobs := make([]*job.Job, len(calls))
	for i, call := range calls {
		results[i].Index = i
		j, err := s.Submit(ctx, call.Endpoint, call.Args...)
		if err != nil {
			results[i].Err = err
			continue
		}
		jobs[i] = j
		results[i].JobID = j.ID()
	}

	failed := make(chan int, len(calls))
	var wg sync.WaitGroup
	for i, j := range jobs {
		if j == nil {
			failed <- i
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i].Value, results[i].Err = wait(ctx, j, cfg.jobTimeout)
			if results[i].Err != nil {
				failed <- i
			}
		}()
	}

	if cfg.strategy == StrategyFailFast {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-failed:
			cancelAll(jobs)
		case <-done:
		}
	}
	wg.Wait()

	return results, evaluate(cfg, results)
}

// wait blocks for j and cancels it when the wait gives up.
func wait(ctx context.Context, j *job.Job, timeout time.Duration) (core.Output, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := j.Result(ctx)
	if err != nil && !j.Done() {
		j.Cancel()
	}
	return out, err
}

func cancelAll(jobs []*job.Job) {
	for _, j := range jobs {
		if j != nil {
			j.Cancel()
		}
	}
}

func evaluate(cfg *config, results []Result[core.Output]) error {
	var failures []Failure
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, Failure{Index: r.Index, JobID: r.JobID, Err: r.Err})
		}
	}
	if len(failures) == 0 {
		return nil
	}

	fail := &Error{
		TotalCount:  len(results),
		FailedCount: len(failures),
		Strategy:    cfg.strategy,
		Failures:    failures,
	}
	switch cfg.strategy {
	case StrategyCollectAll:
		return nil
	case StrategyThreshold:
		ratio := float64(len(results)-len(failures)) / float64(len(results))
		if ratio >= cfg.threshold {
			return nil
		}
	}
	return fail
}

// Gather waits for every job. A ctx ending stops the wait but leaves the
// jobs running.
func Gather(ctx context.Context, jobs []*job.Job) []Result[core.Output] {
	results := make([]Result[core.Output], len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		results[i] = Result[core.Output]{Index: i, JobID: j.ID()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i].Value, results[i].Err = j.Result(ctx)
		}()
	}
	wg.Wait()
	return results
}

// ErrNoSuccess is returned by First when every job failed.
var ErrNoSuccess = errors.New("fanout: no job succeeded")

// First returns the first job to succeed and cancels the others.
func First(ctx context.Context, jobs []*job.Job) (Result[core.Output], error) {
	if len(jobs) == 0 {
		return Result[core.Output]{}, ErrNoSuccess
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan Result[core.Output], len(jobs))
	for i, j := range jobs {
		go func() {
			out, err := j.Result(ctx)
			ch <- Result[core.Output]{Index: i, JobID: j.ID(), Value: out, Err: err}
		}()
	}

	var errs []error
	for range jobs {
		r := <-ch
		if r.Err == nil {
			cancelAll(jobs)
			return r, nil
		}
		if ctx.Err() != nil {
			return Result[core.Output]{}, ctx.Err()
		}
		errs = append(errs, r.Err)
	}
	return Result[core.Output]{}, errors.Join(append([]error{ErrNoSuccess}, errs...)...)
}
