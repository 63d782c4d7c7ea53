package fanout

import (
	"time"
)

// Option configures fan-out behavior.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	strategy     Strategy
	threshold    float64
	jobTimeout   time.Duration
	totalTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		strategy:  StrategyFailFast,
		threshold: 1.0,
	}
}

// FailFast cancels the remaining jobs on the first failure.
func FailFast() Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyFailFast
	})
}

// CollectAll waits for every job and returns partial results.
func CollectAll() Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyCollectAll
	})
}

// Threshold succeeds if at least pct (0..1) of the jobs succeed.
func Threshold(pct float64) Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyThreshold
		c.threshold = pct
	})
}

// WithJobTimeout cancels any single job still running after d.
func WithJobTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.jobTimeout = d
	})
}

// WithTimeout cancels every job still running after d.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.totalTimeout = d
	})
}
