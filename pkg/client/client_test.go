package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
	"github.com/jdziat/simple-remote-jobs/pkg/queuetest"
)

func newServer(t *testing.T, fns []*queuetest.Fn, opts ...queuetest.Option) *queuetest.Server {
	t.Helper()
	srv := queuetest.New(fns, opts...)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, src string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithSubmitRetry(fastRetry(3))}, opts...)
	c, err := New(src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func echo(_ context.Context, call *queuetest.Call) ([]any, error) {
	return call.Args, nil
}

func counter(n int, delay time.Duration) queuetest.Handler {
	return func(ctx context.Context, call *queuetest.Call) ([]any, error) {
		for i := 0; i < n; i++ {
			if err := queuetest.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			call.Yield(i)
		}
		return []any{n - 1}, nil
	}
}

// statusLog records every status each job goes through.
type statusLog struct {
	mu   sync.Mutex
	seen map[string][]core.StatusUpdate
}

func watchStatuses(c *Client) *statusLog {
	l := &statusLog{seen: make(map[string][]core.StatusUpdate)}
	c.OnStatus(func(j *job.Job, st core.StatusUpdate) {
		l.mu.Lock()
		l.seen[j.ID()] = append(l.seen[j.ID()], st)
		l.mu.Unlock()
	})
	return l
}

func (l *statusLog) of(id string) []core.StatusUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.StatusUpdate(nil), l.seen[id]...)
}

func codes(sts []core.StatusUpdate) []core.StatusCode {
	out := make([]core.StatusCode, len(sts))
	for i, st := range sts {
		out[i] = st.Code
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	for _, src := range []string{"", "localhost:7860", "ftp://host", "http://"} {
		_, err := New(src)
		assert.Error(t, err, src)
	}

	_, err := New("http://localhost:7860", WithSessionHash("bad hash!"))
	assert.ErrorIs(t, err, core.ErrInvalidSessionHash)

	c, err := New("http://localhost:7860/", MaxWorkers(0))
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "http://localhost:7860", c.Src())
	assert.Len(t, c.SessionHash(), 32)
	assert.Equal(t, 1, c.Stats().Workers)
}

func TestPredict_Direct(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}}, queuetest.WithQueue(false))
	c := newClient(t, srv.URL)

	j, err := c.Submit(context.Background(), endpoint.Named("echo"), "hello", 2)
	require.NoError(t, err)

	out, err := j.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{"hello", 2.0}, out)
	assert.Equal(t, core.StatusFinished, j.Status().Code)
	require.NotNil(t, j.Status().Success)
	assert.True(t, *j.Status().Success)
	assert.Equal(t, []core.Output{{"hello", 2.0}}, j.Outputs())
	assert.Empty(t, j.EventID())

	out, err = c.Predict(context.Background(), endpoint.Named("/echo"), "again")
	require.NoError(t, err)
	assert.Equal(t, core.Output{"again"}, out)
}

func TestSubmit_Queued(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}})
	c := newClient(t, srv.URL)
	log := watchStatuses(c)

	j, err := c.Submit(context.Background(), endpoint.Named("echo"), "x")
	require.NoError(t, err)

	out, err := j.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{"x"}, out)
	assert.NotEmpty(t, j.EventID())

	assert.Equal(t, []core.StatusCode{
		core.StatusSendingData,
		core.StatusInQueue,
		core.StatusProcessing,
		core.StatusFinished,
	}, codes(log.of(j.ID())))
	assert.Len(t, j.Outputs(), 1)
}

func TestSubmit_GeneratorOutputs(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "count", Generator: true, Handler: counter(5, time.Millisecond)}})
	c := newClient(t, srv.URL)

	j, err := c.SubmitAPI(context.Background(), "/count")
	require.NoError(t, err)

	var got []float64
	for out, err := range j.All(context.Background()) {
		require.NoError(t, err)
		got = append(got, out[0].(float64))
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)

	out, err := j.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{4.0}, out)
	assert.Len(t, j.Outputs(), 5, "final payload is not appended after yields")
}

func TestCancel_AfterThreeIterations(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "count", Generator: true, Handler: counter(10, 50*time.Millisecond)}})
	c := newClient(t, srv.URL)

	cancelled := make(chan string, 1)
	c.OnJobCancel(func(_ context.Context, j *job.Job) { cancelled <- j.ID() })

	j, err := c.Submit(context.Background(), endpoint.Named("count"))
	require.NoError(t, err)

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	for i := 0; i < 3; i++ {
		out, err := j.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.Output{float64(i)}, out)
	}
	assert.True(t, j.Cancel())

	_, err = j.Wait(5 * time.Second)
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StatusCancelled, j.Status().Code)
	assert.False(t, j.Cancel())

	outs := j.Outputs()
	assert.GreaterOrEqual(t, len(outs), 3)
	assert.LessOrEqual(t, len(outs), 4)
	for i, o := range outs {
		assert.Equal(t, core.Output{float64(i)}, o)
	}

	// cancel hooks run once the reset has been sent
	assert.Equal(t, j.ID(), <-cancelled)
	assert.True(t, srv.WasReset(j.EventID()))
}

func TestCancel_AbortsReadWhenServerIgnoresReset(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name:        "stubborn",
		IgnoreReset: true,
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			return nil, queuetest.Sleep(ctx, 10*time.Second)
		},
	}})
	c := newClient(t, srv.URL)
	log := watchStatuses(c)

	j, err := c.Submit(context.Background(), endpoint.Named("stubborn"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return j.Status().Code == core.StatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	require.True(t, j.Cancel())
	_, err = j.Wait(5 * time.Second)
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Eventually(t, func() bool { return srv.WasReset(j.EventID()) }, 2*time.Second, 5*time.Millisecond)

	sts := log.of(j.ID())
	assert.Equal(t, core.StatusCancelled, sts[len(sts)-1].Code)
}

func TestCancel_SlowResetDoesNotDelayResult(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name: "slow",
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			return nil, queuetest.Sleep(ctx, 10*time.Second)
		},
	}}, queuetest.WithResetDelay(5*time.Second))
	c := newClient(t, srv.URL, WithCancelGracePeriod(time.Second))

	j := mustSubmit(t, c, endpoint.Named("slow"))
	require.Eventually(t, func() bool {
		return j.Status().Code == core.StatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	require.True(t, j.Cancel())
	_, err := j.Wait(5 * time.Second)
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, core.StatusCancelled, j.Status().Code)
	assert.Eventually(t, func() bool { return srv.WasReset(j.EventID()) }, 2*time.Second, 5*time.Millisecond)
}

func TestResult_TimeoutLeavesJobRunning(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name: "sleep",
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			return []any{"late"}, queuetest.Sleep(ctx, 5*time.Second)
		},
	}}, queuetest.WithQueue(false))
	c := newClient(t, srv.URL)

	j, err := c.Submit(context.Background(), endpoint.Named("sleep"))
	require.NoError(t, err)

	_, err = j.Wait(100 * time.Millisecond)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.False(t, j.Done())
	assert.NotEqual(t, core.StatusCancelled, j.Status().Code)
	assert.Empty(t, srv.Resets())
}

func TestConcurrentJobs_NoCrossTalk(t *testing.T) {
	rank := func(n int) *int { return &n }
	srv := newServer(t, []*queuetest.Fn{
		{Name: "a", Script: []queuetest.Step{
			queuetest.Send(protocol.Message{Msg: protocol.MsgEstimation, Rank: rank(1), QueueSize: rank(5)}),
			queuetest.Pause(10 * time.Millisecond),
			queuetest.Send(protocol.Message{Msg: protocol.MsgProcessStarts}),
			queuetest.Send(protocol.Message{Msg: protocol.MsgProgress, ProgressData: []core.ProgressUnit{{Index: 1, Unit: "steps"}}}),
			queuetest.Pause(10 * time.Millisecond),
			queuetest.Send(protocol.Message{Msg: protocol.MsgProcessCompleted, Success: queuetest.Bool(true), Output: &protocol.MessageOutput{Data: []any{"A"}}}),
		}},
		{Name: "b", Script: []queuetest.Step{
			queuetest.Send(protocol.Message{Msg: protocol.MsgEstimation, Rank: rank(7), QueueSize: rank(9)}),
			queuetest.Send(protocol.Message{Msg: protocol.MsgProcessStarts}),
			queuetest.Pause(5 * time.Millisecond),
			queuetest.Send(protocol.Message{Msg: protocol.MsgLog, Level: "info", Log: "from b"}),
			queuetest.Send(protocol.Message{Msg: protocol.MsgProcessCompleted, Success: queuetest.Bool(true), Output: &protocol.MessageOutput{Data: []any{"B"}}}),
		}},
	})
	c := newClient(t, srv.URL)
	log := watchStatuses(c)

	ja, err := c.Submit(context.Background(), endpoint.Named("a"))
	require.NoError(t, err)
	jb, err := c.Submit(context.Background(), endpoint.Named("b"))
	require.NoError(t, err)

	outA, err := ja.Wait(5 * time.Second)
	require.NoError(t, err)
	outB, err := jb.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{"A"}, outA)
	assert.Equal(t, core.Output{"B"}, outB)

	for _, st := range log.of(ja.ID()) {
		assert.NotEqual(t, core.StatusLog, st.Code)
		if st.Rank != nil {
			assert.Equal(t, 1, *st.Rank)
		}
	}
	for _, st := range log.of(jb.ID()) {
		assert.NotEqual(t, core.StatusProgress, st.Code)
		if st.Rank != nil {
			assert.Equal(t, 7, *st.Rank)
		}
	}
	assert.Contains(t, codes(log.of(ja.ID())), core.StatusProgress)
	assert.Contains(t, codes(log.of(jb.ID())), core.StatusLog)
}

func TestSession_StatePersistsUntilReset(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name: "count",
		Handler: func(_ context.Context, call *queuetest.Call) ([]any, error) {
			return []any{call.State.Incr("n")}, nil
		},
	}}, queuetest.WithQueue(false))
	c := newClient(t, srv.URL)
	ep := endpoint.Named("count")

	next := func() float64 {
		n, err := job.ResultAs[float64](context.Background(), mustSubmit(t, c, ep), 0)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 1.0, next())
	assert.Equal(t, 2.0, next())
	assert.Equal(t, 3.0, next())

	before := c.SessionHash()
	c.ResetSession()
	assert.NotEqual(t, before, c.SessionHash())
	assert.Equal(t, 1.0, next())
}

func mustSubmit(t *testing.T, c *Client, ep *endpoint.Endpoint, args ...any) *job.Job {
	t.Helper()
	j, err := c.Submit(context.Background(), ep, args...)
	require.NoError(t, err)
	return j
}

func TestStatus_TimesNonDecreasingSingleTerminal(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "count", Generator: true, Handler: counter(20, 0)}})
	c := newClient(t, srv.URL)
	log := watchStatuses(c)

	j := mustSubmit(t, c, endpoint.Named("count"))
	_, err := j.Wait(5 * time.Second)
	require.NoError(t, err)

	sts := log.of(j.ID())
	require.NotEmpty(t, sts)
	terminal := 0
	for i, st := range sts {
		if i > 0 {
			assert.False(t, st.Time.Before(sts[i-1].Time))
		}
		if st.Code.IsTerminal() {
			terminal++
			assert.Equal(t, len(sts)-1, i, "terminal status must be last")
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestSubmit_ClientErrorNotRetried(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}})
	c := newClient(t, srv.URL)
	srv.FailSubmits(http.StatusUnprocessableEntity)

	j := mustSubmit(t, c, endpoint.Named("echo"))
	_, err := j.Wait(5 * time.Second)

	var httpErr *core.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Equal(t, "injected failure", httpErr.Message)
	assert.Equal(t, 1, srv.Submits())

	st := j.Status()
	assert.Equal(t, core.StatusFinished, st.Code)
	require.NotNil(t, st.Success)
	assert.False(t, *st.Success)
}

func TestSubmit_RetriesServerErrors(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}})
	c := newClient(t, srv.URL)
	events := c.Events()
	defer c.Unsubscribe(events)

	srv.FailSubmits(http.StatusServiceUnavailable, http.StatusTooManyRequests)

	out, err := c.Predict(context.Background(), endpoint.Named("echo"), "ok")
	require.NoError(t, err)
	assert.Equal(t, core.Output{"ok"}, out)
	assert.Equal(t, 3, srv.Submits())

	retries := 0
	for len(events) > 0 {
		if _, ok := (<-events).(*core.SubmitRetrying); ok {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestSubmit_RetriesExhausted(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}})
	c := newClient(t, srv.URL)
	srv.FailSubmits(500, 500, 500)

	_, err := c.Predict(context.Background(), endpoint.Named("echo"))
	var httpErr *core.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Equal(t, 3, srv.Submits())
}

func TestSubmit_ConnectionError(t *testing.T) {
	srv := queuetest.New(nil)
	src := srv.URL
	srv.Close()

	c := newClient(t, src)
	_, err := c.Predict(context.Background(), endpoint.Named("echo"))

	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.MethodPost, connErr.Op)
}

func TestStream_ClosedBeforeCompletion(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "cut", Script: []queuetest.Step{
		queuetest.Send(protocol.Message{Msg: protocol.MsgProcessStarts}),
	}}})
	c := newClient(t, srv.URL)

	_, err := c.Predict(context.Background(), endpoint.Named("cut"))
	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, errStreamClosed)
}

func TestStream_ProtocolErrors(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{
		{Name: "garbled", Script: []queuetest.Step{queuetest.Raw("data: {not json\n\n")}},
		{Name: "unknown", Script: []queuetest.Step{queuetest.Raw("data: {\"msg\":\"teleport\"}\n\n")}},
	})
	c := newClient(t, srv.URL)

	for _, name := range []string{"garbled", "unknown"} {
		_, err := c.Predict(context.Background(), endpoint.Named(name))
		var perr *core.ProtocolError
		assert.ErrorAs(t, err, &perr, name)
	}
}

func TestRemoteErrors(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{
		{Name: "fails", Handler: func(context.Context, *queuetest.Call) ([]any, error) {
			return nil, errors.New("ValueError: boom")
		}},
		{Name: "crashes", Script: []queuetest.Step{
			queuetest.Send(protocol.Message{Msg: protocol.MsgUnexpectedError, Message: "worker died"}),
		}},
		{Name: "full", Script: []queuetest.Step{
			queuetest.Send(protocol.Message{Msg: protocol.MsgQueueFull}),
		}},
		{Name: "direct", Queue: queuetest.Bool(false), Handler: func(context.Context, *queuetest.Call) ([]any, error) {
			return nil, errors.New("direct failure")
		}},
	})
	c := newClient(t, srv.URL)
	failed := make(chan error, 4)
	c.OnJobFail(func(_ context.Context, _ *job.Job, err error) { failed <- err })

	tests := []struct {
		name string
		msg  string
	}{
		{"fails", "ValueError: boom"},
		{"crashes", "worker died"},
		{"direct", "direct failure"},
	}
	for _, tt := range tests {
		_, err := c.Predict(context.Background(), endpoint.Named(tt.name))
		var remote *core.RemoteError
		require.ErrorAs(t, err, &remote, tt.name)
		assert.Equal(t, tt.msg, remote.Error())
	}

	_, err := c.Predict(context.Background(), endpoint.Named("full"))
	assert.ErrorIs(t, err, core.ErrQueueFull)

	for i := 0; i < 4; i++ {
		select {
		case <-failed:
		case <-time.After(time.Second):
			t.Fatal("fail hook not called")
		}
	}
}

func TestSubmitAPI_ResolvesFromConfig(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{
		{Name: "echo", Handler: echo},
		{Hidden: true, Handler: func(context.Context, *queuetest.Call) ([]any, error) { return []any{"hidden"}, nil }},
	})
	c := newClient(t, srv.URL)

	set, err := c.Endpoints(context.Background())
	require.NoError(t, err)
	assert.Len(t, set.All(), 2)

	_, err = c.SubmitAPI(context.Background(), "/missing")
	assert.ErrorIs(t, err, core.ErrUnknownEndpoint)

	_, err = c.SubmitAPI(context.Background(), "bad name")
	assert.ErrorIs(t, err, core.ErrInvalidAPIName)

	j, err := c.SubmitFn(context.Background(), 1)
	require.NoError(t, err)
	out, err := j.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{"hidden"}, out)
}

func TestSubmitAPI_WithoutConfig(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}}, queuetest.WithoutConfig())
	c := newClient(t, srv.URL)

	j, err := c.SubmitAPI(context.Background(), "echo", 1)
	require.NoError(t, err)
	out, err := j.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{1.0}, out)

	j, err = c.SubmitFn(context.Background(), 0, 2)
	require.NoError(t, err)
	out, err = j.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.Output{2.0}, out)
}

func TestSubmit_Validation(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")

	_, err := c.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrUnknownEndpoint)

	_, err = c.Submit(context.Background(), &endpoint.Endpoint{})
	assert.ErrorIs(t, err, core.ErrUnknownEndpoint)

	_, err = c.Submit(context.Background(), endpoint.Named("x"), make(chan int))
	assert.Error(t, err)
}

func TestClose_CancelsJobsAndRejectsSubmits(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name: "slow",
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			return nil, queuetest.Sleep(ctx, 10*time.Second)
		},
	}})
	c, err := New(srv.URL, MaxWorkers(1))
	require.NoError(t, err)

	running := mustSubmit(t, c, endpoint.Named("slow"))
	waiting := mustSubmit(t, c, endpoint.Named("slow"))
	require.Eventually(t, func() bool {
		return running.Status().Code == core.StatusProcessing
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, core.StatusStarting, waiting.Status().Code)

	require.NoError(t, c.Close())

	for _, j := range []*job.Job{running, waiting} {
		_, err := j.Wait(time.Second)
		assert.ErrorIs(t, err, core.ErrCancelled)
		assert.Equal(t, core.StatusCancelled, j.Status().Code)
	}

	_, err = c.Submit(context.Background(), endpoint.Named("slow"))
	assert.ErrorIs(t, err, core.ErrClientClosed)
}

func TestCancel_WhileWaitingForWorker(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{
		Name: "slow",
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			return nil, queuetest.Sleep(ctx, 3*time.Second)
		},
	}})
	c := newClient(t, srv.URL, MaxWorkers(1), WithCancelGracePeriod(100*time.Millisecond))

	cancelled := make(chan string, 1)
	c.OnJobCancel(func(_ context.Context, j *job.Job) { cancelled <- j.ID() })

	running := mustSubmit(t, c, endpoint.Named("slow"))
	require.Eventually(t, func() bool {
		return running.Status().Code == core.StatusProcessing
	}, 5*time.Second, 5*time.Millisecond)

	waiting := mustSubmit(t, c, endpoint.Named("slow"))
	start := time.Now()
	assert.True(t, waiting.Cancel())

	_, err := waiting.Wait(5 * time.Second)
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, core.StatusCancelled, waiting.Status().Code)
	assert.Empty(t, waiting.EventID())
	assert.Equal(t, waiting.ID(), <-cancelled)
	assert.False(t, running.Done())
}

func TestMaxWorkers_BoundsConcurrentJobs(t *testing.T) {
	gate := make(chan struct{})
	srv := newServer(t, []*queuetest.Fn{{
		Name: "gated",
		Handler: func(ctx context.Context, _ *queuetest.Call) ([]any, error) {
			select {
			case <-gate:
				return []any{"done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}}, queuetest.WithQueue(false))
	c := newClient(t, srv.URL, MaxWorkers(1))

	first := mustSubmit(t, c, endpoint.Named("gated"))
	second := mustSubmit(t, c, endpoint.Named("gated"))

	require.Eventually(t, func() bool {
		return first.Status().Code == core.StatusSendingData
	}, 5*time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		return second.Status().Code != core.StatusStarting
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, Stats{Workers: 1, Active: 1, Waiting: 1}, c.Stats())

	close(gate)
	for _, j := range []*job.Job{first, second} {
		_, err := j.Wait(5 * time.Second)
		require.NoError(t, err)
	}
}

func TestHooksAndEvents(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "count", Generator: true, Handler: counter(2, 0)}}, queuetest.WithHeartbeat(time.Millisecond))
	c := newClient(t, srv.URL)

	var mu sync.Mutex
	var calls []string
	c.OnJobSubmit(func(context.Context, *job.Job) {
		mu.Lock()
		calls = append(calls, "submit")
		mu.Unlock()
	})
	completed := make(chan *job.Job, 1)
	c.OnJobComplete(func(_ context.Context, j *job.Job) { completed <- j })

	events := c.Events()
	defer c.Unsubscribe(events)

	j := mustSubmit(t, c, endpoint.Named("count"))
	select {
	case got := <-completed:
		assert.Equal(t, j.ID(), got.ID())
		assert.True(t, got.Done(), "hooks run after the job resolves")
	case <-time.After(5 * time.Second):
		t.Fatal("complete hook not called")
	}
	mu.Lock()
	assert.Equal(t, []string{"submit"}, calls)
	mu.Unlock()

	var kinds []string
	outputs := 0
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case e := <-events:
			kinds = append(kinds, fmt.Sprintf("%T", e))
			if o, ok := e.(*core.JobOutput); ok {
				assert.Equal(t, outputs, o.Index)
				outputs++
			}
			_, done = e.(*core.JobCompleted)
		case <-timeout:
			t.Fatal("no completion event")
		}
	}
	assert.Contains(t, kinds, "*core.JobSubmitted")
	assert.Contains(t, kinds, "*core.JobStatusChanged")
	assert.Equal(t, 2, outputs)
}

func TestHeaders(t *testing.T) {
	var got http.Header
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}}, queuetest.WithQueue(false))
	rt := &recordingTransport{next: http.DefaultTransport, onRequest: func(r *http.Request) { got = r.Header.Clone() }}
	c := newClient(t, srv.URL, WithHTTPClient(&http.Client{Transport: rt}), WithToken("secret"), WithHeader("X-Trace", "abc"))

	_, err := c.Predict(context.Background(), endpoint.Named("echo"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.Equal(t, "abc", got.Get("X-Trace"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
}

type recordingTransport struct {
	next      http.RoundTripper
	onRequest func(*http.Request)
}

func (t *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.onRequest(r)
	return t.next.RoundTrip(r)
}
