package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/communicator"
	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// Defaults.
const (
	DefaultMaxWorkers        = 40
	DefaultCancelGracePeriod = 2 * time.Second
)

// Option configures a Client.
type Option interface {
	ApplyClient(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyClient(c *Config) { f(c) }

// Config holds client configuration.
type Config struct {
	// MaxWorkers bounds how many jobs talk to the server at once.
	MaxWorkers int

	HTTPClient *http.Client
	Headers    http.Header

	// SessionHash seeds the session; a random one is generated when empty.
	SessionHash string

	Logger *slog.Logger

	SubmitRetry RetryConfig

	// CancelGracePeriod bounds the best-effort reset request sent on cancel.
	CancelGracePeriod time.Duration

	// StreamBuffer is each job's update channel capacity.
	StreamBuffer int

	// History, when set, records every job's lifecycle.
	History core.Storage
}

func defaultConfig() Config {
	return Config{
		MaxWorkers:        DefaultMaxWorkers,
		Headers:           make(http.Header),
		SubmitRetry:       DefaultRetryConfig(),
		CancelGracePeriod: DefaultCancelGracePeriod,
		StreamBuffer:      communicator.DefaultBufferSize,
	}
}

// MaxWorkers sets the worker pool size. Values are clamped to
// [1, security.MaxWorkers].
func MaxWorkers(n int) Option {
	return optionFunc(func(c *Config) {
		c.MaxWorkers = security.ClampWorkers(n)
	})
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Config) {
		c.HTTPClient = hc
	})
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return optionFunc(func(c *Config) {
		c.Headers.Add(key, value)
	})
}

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return optionFunc(func(c *Config) {
		c.Headers.Set("Authorization", "Bearer "+token)
	})
}

// WithSessionHash sets the initial session hash.
func WithSessionHash(hash string) Option {
	return optionFunc(func(c *Config) {
		c.SessionHash = hash
	})
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}

// WithSubmitRetry sets the retry policy for the initial submission.
// Attempts are clamped to [1, security.MaxRetries].
func WithSubmitRetry(rc RetryConfig) Option {
	return optionFunc(func(c *Config) {
		rc.MaxAttempts = security.ClampRetries(rc.MaxAttempts)
		if rc.MaxAttempts < 1 {
			rc.MaxAttempts = 1
		}
		c.SubmitRetry = rc
	})
}

// WithCancelGracePeriod bounds the reset request sent when a job is
// cancelled. Zero skips the request.
func WithCancelGracePeriod(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.CancelGracePeriod = d
	})
}

// WithStreamBuffer sets the per-job update buffer.
func WithStreamBuffer(n int) Option {
	return optionFunc(func(c *Config) {
		if n > 0 {
			c.StreamBuffer = n
		}
	})
}

// WithHistory records job lifecycles in s.
func WithHistory(s core.Storage) Option {
	return optionFunc(func(c *Config) {
		c.History = s
	})
}
