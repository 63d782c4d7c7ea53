package queuetest

import (
	"context"
	"sync"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
)

// State is per-session storage shared by every call of one Fn.
type State struct {
	mu     sync.Mutex
	values map[string]any
}

func newState() *State {
	return &State{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores v under key.
func (s *State) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Incr adds one to the counter under key and returns the new value.
func (s *State) Incr(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.values[key].(int)
	n++
	s.values[key] = n
	return n
}

// Call is one invocation of a Fn.
type Call struct {
	Args        []any
	SessionHash string
	EventID     string
	State       *State

	emit func(protocol.Message)
}

// Yield streams a partial output. It is dropped for direct (unqueued) calls.
func (c *Call) Yield(values ...any) {
	data := values
	if data == nil {
		data = []any{}
	}
	c.emit(protocol.Message{
		Msg:    protocol.MsgProcessGenerating,
		Output: &protocol.MessageOutput{Data: data, IsGenerating: true},
	})
}

// Progress reports progress units.
func (c *Call) Progress(units ...core.ProgressUnit) {
	c.emit(protocol.Message{Msg: protocol.MsgProgress, ProgressData: units})
}

// Log sends a log line.
func (c *Call) Log(level, message string) {
	c.emit(protocol.Message{Msg: protocol.MsgLog, Level: level, Log: message})
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
