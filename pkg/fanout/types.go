package fanout

import (
	"context"
	"fmt"

	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
)

// Submitter starts jobs. *client.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, ep *endpoint.Endpoint, args ...any) (*job.Job, error)
}

// Call is one submission in a fan-out.
type Call struct {
	Endpoint *endpoint.Endpoint
	Args     []any
}

// Sub creates a call definition.
func Sub(ep *endpoint.Endpoint, args ...any) Call {
	return Call{Endpoint: ep, Args: args}
}

// Strategy decides when a fan-out counts as failed.
type Strategy string

const (
	StrategyFailFast   Strategy = "fail_fast"
	StrategyCollectAll Strategy = "collect_all"
	StrategyThreshold  Strategy = "threshold"
)

// Result wraps a job result with its index and potential error.
type Result[T any] struct {
	Index int    // Position in the original calls slice
	JobID string // Empty if the submission itself failed
	Value T
	Err   error
}

// Error contains details about fan-out failures.
type Error struct {
	TotalCount  int
	FailedCount int
	Strategy    Strategy
	Failures    []Failure
}

func (e *Error) Error() string {
	return fmt.Sprintf("fan-out failed: %d/%d jobs failed", e.FailedCount, e.TotalCount)
}

// Failure contains details about a single failed job.
type Failure struct {
	Index int
	JobID string
	Err   error
}
