package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrInvalidAPIName     = errors.New("jobs: invalid api name (must be alphanumeric, start with letter or slash)")
	ErrAPINameTooLong     = errors.New("jobs: api name too long")
	ErrPayloadTooLarge    = errors.New("jobs: job arguments exceed size limit")
	ErrInvalidSessionHash = errors.New("jobs: invalid session hash")
	ErrUnknownEndpoint    = errors.New("jobs: no such endpoint")
	ErrClientClosed       = errors.New("jobs: client closed")
	ErrQueueFull          = errors.New("jobs: remote queue is full")
)

// ErrCancelled is returned by Result when the job ended in CANCELLED.
var ErrCancelled = &cancelledError{}

type cancelledError struct{}

func (*cancelledError) Error() string { return "jobs: job cancelled" }

func (*cancelledError) Is(target error) bool { return target == context.Canceled }

// ErrTimeout is returned by Result when the caller's wait expired. The job
// itself keeps running.
var ErrTimeout = &timeoutError{}

type timeoutError struct{}

func (*timeoutError) Error() string { return "jobs: timed out waiting for result" }

func (*timeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

func (*timeoutError) Timeout() bool { return true }

// ConnectionError is a transport failure talking to the remote server.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("jobs: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-success status returned by the remote server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("jobs: server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("jobs: server returned %d: %s", e.StatusCode, e.Message)
}

// ProtocolError indicates an event or response the client could not decode.
type ProtocolError struct {
	Msg     string
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jobs: protocol error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("jobs: protocol error: %s", e.Msg)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteError carries the failure reported by the remote function verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "jobs: remote function failed"
	}
	return e.Message
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}
