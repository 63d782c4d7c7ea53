// Package protocol defines the JSON wire contract spoken with a remote queue
// server and the decoding of its event stream.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// Server routes.
const (
	PathConfig    = "/config"
	PathPredict   = "/api/predict"
	PathRunPrefix = "/run"
	PathQueueData = "/queue/data"
	PathReset     = "/reset"
)

// Event stream message kinds.
const (
	MsgSendHash          = "send_hash"
	MsgQueueFull         = "queue_full"
	MsgEstimation        = "estimation"
	MsgSendData          = "send_data"
	MsgProcessStarts     = "process_starts"
	MsgProcessGenerating = "process_generating"
	MsgProgress          = "progress"
	MsgLog               = "log"
	MsgProcessCompleted  = "process_completed"
	MsgHeartbeat         = "heartbeat"
	MsgUnexpectedError   = "unexpected_error"
)

var msgStatus = map[string]core.StatusCode{
	MsgSendHash:          core.StatusJoiningQueue,
	MsgQueueFull:         core.StatusQueueFull,
	MsgEstimation:        core.StatusInQueue,
	MsgSendData:          core.StatusSendingData,
	MsgProcessStarts:     core.StatusProcessing,
	MsgProcessGenerating: core.StatusIterating,
	MsgProgress:          core.StatusProgress,
	MsgLog:               core.StatusLog,
	MsgProcessCompleted:  core.StatusFinished,
}

// SubmitRequest is the body of a run/predict call.
type SubmitRequest struct {
	Data        []any  `json:"data"`
	FnIndex     *int   `json:"fn_index,omitempty"`
	SessionHash string `json:"session_hash,omitempty"`
	EventID     string `json:"event_id,omitempty"`
}

// SubmitResponse is either a direct result (queue disabled) or a queue ticket.
type SubmitResponse struct {
	Data         []any   `json:"data,omitempty"`
	IsGenerating bool    `json:"is_generating,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	EventID      string  `json:"event_id,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Queued reports whether the server accepted the job into its queue instead
// of answering directly.
func (r *SubmitResponse) Queued() bool {
	return r.EventID != "" && r.Data == nil
}

// ResetRequest asks the server to cancel a queued or running event.
type ResetRequest struct {
	EventID     string `json:"event_id"`
	SessionHash string `json:"session_hash,omitempty"`
}

// ErrorResponse is the JSON error body servers send with non-2xx statuses.
type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Text returns the most specific message in the body.
func (r *ErrorResponse) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Detail
}

// MessageOutput is the payload attached to generating/completed messages.
type MessageOutput struct {
	Data         []any  `json:"data"`
	Error        string `json:"error,omitempty"`
	IsGenerating bool   `json:"is_generating,omitempty"`
}

// Message is one event read off the stream.
type Message struct {
	Msg          string              `json:"msg"`
	EventID      string              `json:"event_id,omitempty"`
	Rank         *int                `json:"rank,omitempty"`
	QueueSize    *int                `json:"queue_size,omitempty"`
	RankETA      *float64            `json:"rank_eta,omitempty"`
	ETA          *float64            `json:"eta,omitempty"`
	Success      *bool               `json:"success,omitempty"`
	Output       *MessageOutput      `json:"output,omitempty"`
	ProgressData []core.ProgressUnit `json:"progress_data,omitempty"`
	Log          string              `json:"log,omitempty"`
	Level        string              `json:"level,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// Status converts the message into a StatusUpdate stamped with now.
// Unknown message kinds are a protocol error.
func (m *Message) Status(now time.Time) (core.StatusUpdate, error) {
	code, ok := msgStatus[m.Msg]
	if !ok {
		return core.StatusUpdate{}, &core.ProtocolError{Msg: fmt.Sprintf("unknown message kind %q", m.Msg)}
	}

	su := core.StatusUpdate{
		Code:      code,
		Time:      now,
		Rank:      m.Rank,
		QueueSize: m.QueueSize,
		Success:   m.Success,
	}

	eta := m.RankETA
	if eta == nil {
		eta = m.ETA
	}
	if eta != nil {
		d := time.Duration(*eta * float64(time.Second))
		su.ETA = &d
	}

	if len(m.ProgressData) > 0 {
		su.ProgressData = make([]core.ProgressUnit, len(m.ProgressData))
		copy(su.ProgressData, m.ProgressData)
	}

	if code == core.StatusLog {
		su.Log = &core.LogMessage{Level: m.Level, Message: m.Log}
	}

	return su, nil
}

// Ignored reports whether the message carries no status (keep-alives).
func (m *Message) Ignored() bool {
	return m.Msg == MsgHeartbeat
}

// Err returns the error the message ends the job with, or nil.
func (m *Message) Err() error {
	switch m.Msg {
	case MsgUnexpectedError:
		return &core.RemoteError{Message: m.Message}
	case MsgQueueFull:
		return core.ErrQueueFull
	case MsgProcessCompleted:
		if m.Success != nil && !*m.Success {
			msg := ""
			if m.Output != nil {
				msg = m.Output.Error
			}
			return &core.RemoteError{Message: msg}
		}
		if m.Output != nil && m.Output.Error != "" {
			return &core.RemoteError{Message: m.Output.Error}
		}
	}
	return nil
}

// ConfigResponse describes the endpoints a server exposes.
type ConfigResponse struct {
	Version      string           `json:"version"`
	EnableQueue  bool             `json:"enable_queue"`
	Dependencies []DependencyInfo `json:"dependencies"`
}

// DependencyInfo describes one callable on the server.
type DependencyInfo struct {
	ID      int             `json:"id"`
	APIName APIName         `json:"api_name"`
	Queue   *bool           `json:"queue,omitempty"`
	Types   DependencyTypes `json:"types"`
}

// DependencyTypes carries the callable's execution shape.
type DependencyTypes struct {
	Continuous bool `json:"continuous"`
	Generator  bool `json:"generator"`
}

// APIName is an endpoint name that servers encode as a string, or as false/null
// for callables hidden from the api.
type APIName string

// UnmarshalJSON accepts a string, a boolean, or null.
func (n *APIName) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = APIName(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case nil, bool:
		*n = ""
		return nil
	}
	return fmt.Errorf("api_name: unexpected value %s", string(b))
}
