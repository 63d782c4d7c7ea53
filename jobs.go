// Package jobs submits work to queued remote compute servers and streams
// back status and results.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	client, _ := jobs.NewClient("http://localhost:7860")
//	defer client.Close()
//
//	job, _ := client.Submit(ctx, jobs.Named("/predict"), "hello")
//	for out, err := range job.All(ctx) {
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println(out)
//	}
//	result, err := job.Result(ctx)
package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/client"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/fanout"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/jobctx"
	"github.com/jdziat/simple-remote-jobs/pkg/schedule"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
	"github.com/jdziat/simple-remote-jobs/pkg/storage"
)

type (
	// Client submits jobs to one remote server.
	Client = client.Client

	// ClientOption configures a Client.
	ClientOption = client.Option

	// ClientConfig holds client configuration.
	ClientConfig = client.Config

	// RetryConfig controls submission retries.
	RetryConfig = client.RetryConfig

	// Job is the handle for one submission.
	Job = job.Job

	// Iterator walks a job's outputs.
	Iterator = job.Iterator

	// Endpoint is one remote callable.
	Endpoint = endpoint.Endpoint

	// Codec converts arguments and outputs.
	Codec = endpoint.Codec

	// StatusCode is the job lifecycle state.
	StatusCode = core.StatusCode

	// StatusUpdate is one status snapshot.
	StatusUpdate = core.StatusUpdate

	// Output is one list of output values.
	Output = core.Output

	// ProgressUnit is one progress bar reported by the server.
	ProgressUnit = core.ProgressUnit

	// Event is the interface for all client events.
	Event = core.Event

	JobSubmitted     = core.JobSubmitted
	JobStatusChanged = core.JobStatusChanged
	JobOutput        = core.JobOutput
	JobCompleted     = core.JobCompleted
	JobFailed        = core.JobFailed
	JobCancelled     = core.JobCancelled
	SubmitRetrying   = core.SubmitRetrying

	// ConnectionError wraps network failures.
	ConnectionError = core.ConnectionError

	// HTTPError is a non-2xx response.
	HTTPError = core.HTTPError

	// ProtocolError is a malformed server message.
	ProtocolError = core.ProtocolError

	// RemoteError is a failure reported by the remote function.
	RemoteError = core.RemoteError

	// Storage persists job history.
	Storage = core.Storage

	// JobRecord is one history row.
	JobRecord = core.JobRecord

	// JobFilter narrows history listings.
	JobFilter = core.JobFilter

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// Schedule defines when a recurring submission runs next.
	Schedule = schedule.Schedule
)

// Status constants
const (
	StatusStarting     = core.StatusStarting
	StatusJoiningQueue = core.StatusJoiningQueue
	StatusQueueFull    = core.StatusQueueFull
	StatusInQueue      = core.StatusInQueue
	StatusSendingData  = core.StatusSendingData
	StatusProcessing   = core.StatusProcessing
	StatusIterating    = core.StatusIterating
	StatusProgress     = core.StatusProgress
	StatusLog          = core.StatusLog
	StatusFinished     = core.StatusFinished
	StatusCancelled    = core.StatusCancelled
)

// Security limits
const (
	MaxAPINameLength      = security.MaxAPINameLength
	MaxPayloadSize        = security.MaxPayloadSize
	MaxWorkersLimit       = security.MaxWorkers
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrInvalidAPIName     = core.ErrInvalidAPIName
	ErrAPINameTooLong     = core.ErrAPINameTooLong
	ErrPayloadTooLarge    = core.ErrPayloadTooLarge
	ErrInvalidSessionHash = core.ErrInvalidSessionHash
	ErrUnknownEndpoint    = core.ErrUnknownEndpoint
	ErrClientClosed       = core.ErrClientClosed
	ErrQueueFull          = core.ErrQueueFull
	ErrCancelled          = core.ErrCancelled
	ErrTimeout            = core.ErrTimeout
)

// NewClient creates a client for the server at src.
func NewClient(src string, opts ...ClientOption) (*Client, error) {
	return client.New(src, opts...)
}

// Named returns an endpoint addressed by api name.
func Named(apiName string) *Endpoint {
	return endpoint.Named(apiName)
}

// Indexed returns an endpoint addressed by fn_index.
func Indexed(fnIndex int) *Endpoint {
	return endpoint.Indexed(fnIndex)
}

// Client option functions

// MaxWorkers bounds concurrently running jobs.
func MaxWorkers(n int) ClientOption {
	return client.MaxWorkers(n)
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return client.WithHTTPClient(hc)
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return client.WithHeader(key, value)
}

// WithToken sends a bearer token.
func WithToken(token string) ClientOption {
	return client.WithToken(token)
}

// WithSessionHash pins the session hash.
func WithSessionHash(hash string) ClientOption {
	return client.WithSessionHash(hash)
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return client.WithLogger(l)
}

// WithSubmitRetry sets the submission retry policy.
func WithSubmitRetry(rc RetryConfig) ClientOption {
	return client.WithSubmitRetry(rc)
}

// WithCancelGracePeriod bounds the cancel request sent on Job.Cancel.
func WithCancelGracePeriod(d time.Duration) ClientOption {
	return client.WithCancelGracePeriod(d)
}

// WithHistory records every job in s.
func WithHistory(s Storage) ClientOption {
	return client.WithHistory(s)
}

// OpenStorage opens a sqlite or postgres history store and migrates it.
func OpenStorage(ctx context.Context, dsn string) (*GormStorage, error) {
	return storage.Open(ctx, dsn)
}

// ResultAs waits for j and decodes output element index into T.
func ResultAs[T any](ctx context.Context, j *Job, index int) (T, error) {
	return job.ResultAs[T](ctx, j, index)
}

// Gather waits for every job.
func Gather(ctx context.Context, jobs []*Job) []fanout.Result[Output] {
	return fanout.Gather(ctx, jobs)
}

// First returns the first job to succeed and cancels the others.
func First(ctx context.Context, jobs []*Job) (fanout.Result[Output], error) {
	return fanout.First(ctx, jobs)
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// JobIDFromContext returns the job id carried by ctx, or "".
func JobIDFromContext(ctx context.Context) string {
	return jobctx.JobIDFromContext(ctx)
}
