package queuetest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// Option configures a Server.
type Option func(*Server)

// WithQueue sets whether fns without their own Queue setting are queued.
// Defaults to true.
func WithQueue(enabled bool) Option {
	return func(s *Server) {
		s.enableQueue = enabled
	}
}

// WithConcurrency sets how many queued calls run at once. Defaults to 4.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithHeartbeat sends a heartbeat on every open stream each interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = interval
	}
}

// WithoutConfig makes the config route answer 404.
func WithoutConfig() Option {
	return func(s *Server) {
		s.noConfig = true
	}
}

// WithVersion sets the version reported in the config.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithResetDelay makes the reset route wait d before answering. The reset is
// recorded and applied first.
func WithResetDelay(d time.Duration) Option {
	return func(s *Server) {
		s.resetDelay = d
	}
}

// Server is an in-process backend.
type Server struct {
	URL string

	srv         *httptest.Server
	base        context.Context
	stop        context.CancelFunc
	wg          sync.WaitGroup
	enableQueue bool
	concurrency int
	heartbeat   time.Duration
	noConfig    bool
	version     string
	resetDelay  time.Duration
	fns         []*Fn
	byName      map[string]int
	slots       chan struct{}

	mu          sync.Mutex
	events      map[string]*event
	waiting     []string
	sessions    map[string]map[int]*State
	resets      []string
	submits     int
	failSubmits []int
}

// New starts a server exposing fns. Index in fns is the fn_index.
func New(fns []*Fn, opts ...Option) *Server {
	s := &Server{
		enableQueue: true,
		concurrency: 4,
		version:     "3.50.2",
		fns:         fns,
		byName:      make(map[string]int),
		events:      make(map[string]*event),
		sessions:    make(map[string]map[int]*State),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.stop = context.WithCancel(context.Background())
	s.slots = make(chan struct{}, s.concurrency)
	for i, fn := range fns {
		if !fn.Hidden && fn.Name != "" {
			s.byName[security.NormalizeAPIName(fn.Name)] = i
		}
	}

	r := mux.NewRouter()
	r.HandleFunc(protocol.PathConfig, s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc(protocol.PathRunPrefix+"/{api_name}", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathPredict, s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathQueueData, s.handleStream).Methods(http.MethodGet)
	r.HandleFunc(protocol.PathReset, s.handleReset).Methods(http.MethodPost)

	s.srv = httptest.NewServer(h2c.NewHandler(r, &http2.Server{}))
	s.URL = s.srv.URL
	return s
}

// Close stops every running call and shuts the server down.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
	s.srv.Close()
}

// FailSubmits makes the next len(statuses) submissions answer with the given
// HTTP statuses, in order.
func (s *Server) FailSubmits(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSubmits = append(s.failSubmits, statuses...)
}

// Submits returns how many submissions the server has received.
func (s *Server) Submits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

// Resets returns the event ids reset requests named, in arrival order.
func (s *Server) Resets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.resets))
	copy(out, s.resets)
	return out
}

// WasReset reports whether a reset named eventID.
func (s *Server) WasReset(eventID string) bool {
	for _, id := range s.Resets() {
		if id == eventID {
			return true
		}
	}
	return false
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.noConfig {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	deps := make([]map[string]any, 0, len(s.fns))
	for i, fn := range s.fns {
		var name any = false
		if !fn.Hidden && fn.Name != "" {
			name = strings.TrimPrefix(fn.Name, "/")
		}
		dep := map[string]any{
			"id":       i,
			"api_name": name,
			"types":    map[string]any{"continuous": false, "generator": fn.Generator},
		}
		if fn.Queue != nil {
			dep["queue"] = *fn.Queue
		}
		deps = append(deps, dep)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      s.version,
		"enable_queue": s.enableQueue,
		"dependencies": deps,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.submits++
	if len(s.failSubmits) > 0 {
		code := s.failSubmits[0]
		s.failSubmits = s.failSubmits[1:]
		s.mu.Unlock()
		writeError(w, code, "injected failure")
		return
	}
	s.mu.Unlock()

	var req protocol.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, security.MaxPayloadSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	idx, ok := s.lookup(mux.Vars(r)["api_name"], req.FnIndex)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}
	fn := s.fns[idx]
	call := &Call{
		Args:        req.Data,
		SessionHash: req.SessionHash,
		State:       s.state(req.SessionHash, idx),
		emit:        func(protocol.Message) {},
	}

	queued := s.enableQueue
	if fn.Queue != nil {
		queued = *fn.Queue
	}
	if !queued && len(fn.Script) == 0 {
		out, err := fn.Handler(r.Context(), call)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
			return
		}
		if out == nil {
			out = []any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
		return
	}

	id := req.EventID
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	ev := newEvent(s.base, id, req.SessionHash, fn)
	call.EventID = id
	call.emit = ev.send

	s.mu.Lock()
	s.events[id] = ev
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ev, call)
	}()
	writeJSON(w, http.StatusOK, map[string]any{"event_id": id})
}

func (s *Server) lookup(apiName string, fnIndex *int) (int, bool) {
	if apiName != "" {
		idx, ok := s.byName[security.NormalizeAPIName(apiName)]
		return idx, ok
	}
	if fnIndex != nil && *fnIndex >= 0 && *fnIndex < len(s.fns) {
		return *fnIndex, true
	}
	return 0, false
}

func (s *Server) state(session string, idx int) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	byFn, ok := s.sessions[session]
	if !ok {
		byFn = make(map[int]*State)
		s.sessions[session] = byFn
	}
	st, ok := byFn[idx]
	if !ok {
		st = newState()
		byFn[idx] = st
	}
	return st
}

func (s *Server) run(ev *event, call *Call) {
	defer ev.finish()
	defer ev.cancel()

	if len(ev.fn.Script) > 0 {
		for _, step := range ev.fn.Script {
			if step.delay > 0 {
				if Sleep(ev.ctx, step.delay) != nil {
					return
				}
				continue
			}
			ev.push(step.line)
		}
		return
	}

	rank, size := s.join(ev.id)
	eta := float64(rank)
	ev.send(protocol.Message{Msg: protocol.MsgEstimation, Rank: &rank, QueueSize: &size, RankETA: &eta})

	select {
	case s.slots <- struct{}{}:
	case <-ev.ctx.Done():
		s.leave(ev.id)
		return
	}
	defer func() { <-s.slots }()
	s.leave(ev.id)

	ev.send(protocol.Message{Msg: protocol.MsgProcessStarts})
	out, err := ev.fn.Handler(ev.ctx, call)
	if ev.ctx.Err() != nil {
		// reset or shutdown: the stream ends without a completion
		return
	}
	if err != nil {
		ev.send(protocol.Message{
			Msg:     protocol.MsgProcessCompleted,
			Success: Bool(false),
			Output:  &protocol.MessageOutput{Error: err.Error()},
		})
		return
	}
	if out == nil {
		out = []any{}
	}
	ev.send(protocol.Message{
		Msg:     protocol.MsgProcessCompleted,
		Success: Bool(true),
		Output:  &protocol.MessageOutput{Data: out},
	})
}

func (s *Server) join(id string) (rank, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rank = len(s.waiting)
	s.waiting = append(s.waiting, id)
	return rank, len(s.waiting)
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiting {
		if w == id {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	ev, ok := s.events[q.Get("event_id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown event")
		return
	}
	if sh := q.Get("session_hash"); sh != "" && sh != ev.session {
		writeError(w, http.StatusNotFound, "session mismatch")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	pos := 0
	for {
		lines, done, changed := ev.since(pos)
		for _, line := range lines {
			if _, err := io.WriteString(w, line); err != nil {
				return
			}
		}
		pos += len(lines)
		flusher.Flush()
		if done {
			return
		}

		select {
		case <-changed:
		case <-tick:
			if _, err := io.WriteString(w, "data: {\"msg\":\"heartbeat\"}\n\n"); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.base.Done():
			return
		}
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.mu.Lock()
	s.resets = append(s.resets, req.EventID)
	ev := s.events[req.EventID]
	s.mu.Unlock()

	if ev != nil && !ev.fn.IgnoreReset {
		ev.cancel()
	}
	if s.resetDelay > 0 {
		select {
		case <-time.After(s.resetDelay):
		case <-r.Context().Done():
			return
		case <-s.base.Done():
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": ev != nil})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, protocol.ErrorResponse{Error: msg})
}
