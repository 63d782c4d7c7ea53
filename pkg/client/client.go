package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-remote-jobs/pkg/communicator"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/endpoint"
	"github.com/jdziat/simple-remote-jobs/pkg/job"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// Client submits calls to one remote server and tracks them as Jobs.
type Client struct {
	base   string
	config Config
	http   *http.Client
	logger *slog.Logger
	pool   *pool

	mu        sync.RWMutex
	session   string
	endpoints *endpoint.Set

	hookMu     sync.RWMutex
	onSubmit   []func(context.Context, *job.Job)
	onComplete []func(context.Context, *job.Job)
	onFail     []func(context.Context, *job.Job, error)
	onCancel   []func(context.Context, *job.Job)
	onStatus   []func(*job.Job, core.StatusUpdate)
	eventSubs  []chan core.Event
}

// New creates a client for the server at src, e.g. "http://localhost:7860".
func New(src string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("jobs: invalid server url %q: %w", src, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("jobs: invalid server url %q: scheme must be http or https", src)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("jobs: invalid server url %q: missing host", src)
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt.ApplyClient(&config)
	}

	session := config.SessionHash
	if session == "" {
		session = newSessionHash()
	}
	if err := security.ValidateSessionHash(session); err != nil {
		return nil, err
	}

	c := &Client{
		base:    strings.TrimRight(u.String(), "/"),
		config:  config,
		http:    config.HTTPClient,
		logger:  config.Logger,
		session: session,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.pool = newPool(security.ClampWorkers(config.MaxWorkers))
	return c, nil
}

func newSessionHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Src returns the server base url.
func (c *Client) Src() string {
	return c.base
}

// SessionHash returns the current session hash.
func (c *Client) SessionHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// ResetSession starts a fresh server-side session. Jobs already submitted
// keep the hash they were submitted with.
func (c *Client) ResetSession() {
	c.mu.Lock()
	c.session = newSessionHash()
	c.mu.Unlock()
}

// Stats reports worker pool usage.
func (c *Client) Stats() Stats {
	return c.pool.stats()
}

// Close cancels every running and waiting job and waits for the workers to
// exit. It must not be called from a hook.
func (c *Client) Close() error {
	c.pool.close()
	return nil
}

// Endpoints fetches the server's endpoint table. The result is cached.
func (c *Client) Endpoints(ctx context.Context) (*endpoint.Set, error) {
	c.mu.RLock()
	set := c.endpoints
	c.mu.RUnlock()
	if set != nil {
		return set, nil
	}

	cfg, err := c.fetchConfig(ctx)
	if err != nil {
		return nil, err
	}
	set = endpoint.NewSet(endpoint.FromConfig(cfg))

	c.mu.Lock()
	c.endpoints = set
	c.mu.Unlock()
	return set, nil
}

// Endpoint resolves apiName against the server config. Servers that do not
// publish a config get a bare named endpoint.
func (c *Client) Endpoint(ctx context.Context, apiName string) (*endpoint.Endpoint, error) {
	if err := security.ValidateAPIName(apiName); err != nil {
		return nil, err
	}
	set, err := c.Endpoints(ctx)
	if err != nil {
		if isNotFound(err) {
			return endpoint.Named(apiName), nil
		}
		return nil, err
	}
	return set.Lookup(apiName)
}

// Submit schedules a call to ep and returns its Job immediately. Errors are
// returned only for invalid input or a closed client; everything that
// happens on the wire is reported through the Job. ctx is passed to hooks
// and history; it does not bound the job.
func (c *Client) Submit(ctx context.Context, ep *endpoint.Endpoint, args ...any) (*job.Job, error) {
	if ep == nil {
		return nil, fmt.Errorf("%w: nil endpoint", core.ErrUnknownEndpoint)
	}
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode arguments: %w", err)
	}
	if err := security.ValidatePayloadSize(argsJSON); err != nil {
		return nil, err
	}

	t := &task{
		id:          uuid.NewString(),
		ep:          ep,
		args:        args,
		argsJSON:    argsJSON,
		session:     c.SessionHash(),
		submittedAt: time.Now(),
	}
	t.comm = communicator.New(
		communicator.WithBufferSize(c.config.StreamBuffer),
		communicator.WithApplyFunc(c.observe(t)),
	)
	t.job, t.resolve = job.New(t.id, ep.Name(), t.comm)

	// recorded before dispatch so the final record always wins
	c.recordSubmitted(ctx, t)
	if err := c.pool.dispatch(func(poolCtx context.Context) {
		c.run(poolCtx, t)
	}, func() {
		c.abandon(t)
	}, t.comm.CancelRequested()); err != nil {
		t.comm.Close()
		c.forgetSubmitted(ctx, t)
		return nil, err
	}

	c.logger.Debug("job submitted", "job_id", t.id, "api_name", ep.Name())
	c.callSubmitHooks(ctx, t.job)
	c.Emit(&core.JobSubmitted{JobID: t.id, APIName: ep.Name(), Timestamp: t.submittedAt})
	return t.job, nil
}

// SubmitAPI submits to the endpoint named apiName.
func (c *Client) SubmitAPI(ctx context.Context, apiName string, args ...any) (*job.Job, error) {
	ep, err := c.Endpoint(ctx, apiName)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, ep, args...)
}

// SubmitFn submits to the endpoint with the given fn_index. When the server
// publishes no config the index is used as is.
func (c *Client) SubmitFn(ctx context.Context, fnIndex int, args ...any) (*job.Job, error) {
	set, err := c.Endpoints(ctx)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		return c.Submit(ctx, endpoint.Indexed(fnIndex), args...)
	}
	ep, err := set.LookupIndex(fnIndex)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, ep, args...)
}

// Predict submits a call and waits for its result. Ending ctx stops the
// wait, not the job.
func (c *Client) Predict(ctx context.Context, ep *endpoint.Endpoint, args ...any) (core.Output, error) {
	j, err := c.Submit(ctx, ep, args...)
	if err != nil {
		return nil, err
	}
	return j.Result(ctx)
}
