package queuetest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
)

// Handler computes a call's output list.
type Handler func(ctx context.Context, call *Call) ([]any, error)

// Fn is a callable registered on a Server.
type Fn struct {
	// Name is the api name, with or without the leading slash.
	Name string

	// Hidden fns are reported with api_name false and reachable by index only.
	Hidden bool

	// Queue overrides the server default when non-nil.
	Queue *bool

	Generator bool

	Handler Handler

	// Script, when set, replaces Handler: a queued call replays the steps
	// verbatim and the stream closes after the last one.
	Script []Step

	// IgnoreReset keeps the call running after a reset request.
	IgnoreReset bool
}

// Step is one element of a Fn script.
type Step struct {
	line  string
	delay time.Duration
}

// Send emits msg as an event.
func Send(msg protocol.Message) Step {
	b, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return Step{line: "data: " + string(b) + "\n\n"}
}

// Raw writes line to the stream as is.
func Raw(line string) Step {
	return Step{line: line}
}

// Pause waits d before the next step.
func Pause(d time.Duration) Step {
	return Step{delay: d}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
