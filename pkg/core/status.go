package core

import (
	"time"
)

// StatusCode identifies where a job is in its lifecycle.
type StatusCode string

const (
	StatusStarting     StatusCode = "STARTING"
	StatusJoiningQueue StatusCode = "JOINING_QUEUE" // Server acknowledged the session hash
	StatusQueueFull    StatusCode = "QUEUE_FULL"
	StatusInQueue      StatusCode = "IN_QUEUE"
	StatusSendingData  StatusCode = "SENDING_DATA"
	StatusProcessing   StatusCode = "PROCESSING"
	StatusIterating    StatusCode = "ITERATING"
	StatusProgress     StatusCode = "PROGRESS"
	StatusLog          StatusCode = "LOG"
	StatusFinished     StatusCode = "FINISHED"
	StatusCancelled    StatusCode = "CANCELLED"
)

// IsTerminal reports whether no further updates may follow this status.
func (c StatusCode) IsTerminal() bool {
	return c == StatusFinished || c == StatusCancelled
}

// ProgressUnit is one tracked unit of work reported by the remote function.
type ProgressUnit struct {
	Index    int      `json:"index"`
	Length   *int     `json:"length,omitempty"`
	Unit     string   `json:"unit"`
	Progress *float64 `json:"progress,omitempty"`
	Desc     *string  `json:"desc,omitempty"`
}

// Clone returns a copy that shares no pointers with p.
func (p ProgressUnit) Clone() ProgressUnit {
	out := p
	if p.Length != nil {
		n := *p.Length
		out.Length = &n
	}
	if p.Progress != nil {
		f := *p.Progress
		out.Progress = &f
	}
	if p.Desc != nil {
		d := *p.Desc
		out.Desc = &d
	}
	return out
}

// LogMessage is a log line the remote function attached to the job.
type LogMessage struct {
	Level   string `json:"level"`
	Message string `json:"log"`
}

// StatusUpdate is a point-in-time snapshot of a job's progress.
type StatusUpdate struct {
	Code         StatusCode
	Time         time.Time
	ETA          *time.Duration
	Rank         *int
	QueueSize    *int
	Success      *bool
	ProgressData []ProgressUnit
	Log          *LogMessage
}

// Clone returns a deep copy so callers never share memory with job state.
func (s StatusUpdate) Clone() StatusUpdate {
	out := s
	if s.ETA != nil {
		eta := *s.ETA
		out.ETA = &eta
	}
	if s.Rank != nil {
		rank := *s.Rank
		out.Rank = &rank
	}
	if s.QueueSize != nil {
		size := *s.QueueSize
		out.QueueSize = &size
	}
	if s.Success != nil {
		ok := *s.Success
		out.Success = &ok
	}
	if s.ProgressData != nil {
		out.ProgressData = make([]ProgressUnit, len(s.ProgressData))
		for i, p := range s.ProgressData {
			out.ProgressData[i] = p.Clone()
		}
	}
	if s.Log != nil {
		l := *s.Log
		out.Log = &l
	}
	return out
}

// Output is the decoded data list of one result payload, one element per
// return value of the remote function.
type Output []any

// Clone returns a deep copy of the output. Maps and slices decoded from JSON
// are copied recursively; other values are copied as is.
func (o Output) Clone() Output {
	if o == nil {
		return nil
	}
	out := make(Output, len(o))
	for i, v := range o {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		if t == nil {
			return t
		}
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = cloneValue(e)
		}
		return l
	case []byte:
		if t == nil {
			return t
		}
		return append([]byte(nil), t...)
	default:
		return v
	}
}
