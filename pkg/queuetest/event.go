package queuetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
)

// event is the server-side record of one queued call. Its stream lines are
// kept so that a late subscriber still sees everything.
type event struct {
	id      string
	session string
	fn      *Fn
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	lines   []string
	done    bool
	changed chan struct{}
}

func newEvent(parent context.Context, id, session string, fn *Fn) *event {
	ctx, cancel := context.WithCancel(parent)
	return &event{
		id:      id,
		session: session,
		fn:      fn,
		ctx:     ctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
}

func (e *event) send(msg protocol.Message) {
	msg.EventID = e.id
	b, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	e.push("data: " + string(b) + "\n\n")
}

func (e *event) push(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.lines = append(e.lines, line)
	e.notify()
}

func (e *event) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.notify()
}

// notify must be called with mu held.
func (e *event) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

func (e *event) since(i int) ([]string, bool, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var lines []string
	if i < len(e.lines) {
		lines = append(lines, e.lines[i:]...)
	}
	return lines, e.done, e.changed
}
