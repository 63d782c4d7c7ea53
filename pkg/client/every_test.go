package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/queuetest"
	"github.com/jdziat/simple-remote-jobs/pkg/schedule"
)

func TestEvery_SubmitsOnSchedule(t *testing.T) {
	srv := newServer(t, []*queuetest.Fn{{Name: "echo", Handler: echo}}, queuetest.WithQueue(false))
	c := newClient(t, srv.URL)

	var mu sync.Mutex
	var jobs []*job.Job
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := c.Every(ctx, schedule.Every(20*time.Millisecond), endpoint.Named("echo"), []any{"tick"}, func(j *job.Job) {
		mu.Lock()
		jobs = append(jobs, j)
		mu.Unlock()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, len(jobs), 3)
	for _, j := range jobs {
		out, err := j.Wait(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, core.Output{"tick"}, out)
	}
}

func TestEvery_StopsWhenClientCloses(t *testing.T) {
	c, err := New("http://127.0.0.1:1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- c.Every(context.Background(), schedule.Every(time.Hour), endpoint.Named("x"), nil, nil)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrClientClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Every did not return after Close")
	}
}
