package core

import "time"

// Event is the interface for all client events.
type Event interface {
	eventMarker()
}

// JobSubmitted is emitted when a job is handed to the worker pool.
type JobSubmitted struct {
	JobID     string
	APIName   string
	Timestamp time.Time
}

func (*JobSubmitted) eventMarker() {}

// JobStatusChanged is emitted for every status update read off the wire.
type JobStatusChanged struct {
	JobID     string
	APIName   string
	Status    StatusUpdate
	Timestamp time.Time
}

func (*JobStatusChanged) eventMarker() {}

// JobOutput is emitted when a partial or final output arrives.
type JobOutput struct {
	JobID     string
	Index     int
	Output    Output
	Timestamp time.Time
}

func (*JobOutput) eventMarker() {}

// JobCompleted is emitted when a job finishes successfully.
type JobCompleted struct {
	JobID     string
	APIName   string
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job ends with an error.
type JobFailed struct {
	JobID     string
	APIName   string
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobCancelled is emitted when a job ends in CANCELLED.
type JobCancelled struct {
	JobID     string
	APIName   string
	EventID   string
	Timestamp time.Time
}

func (*JobCancelled) eventMarker() {}

// SubmitRetrying is emitted when the initial submission is retried.
type SubmitRetrying struct {
	JobID     string
	Attempt   int
	Error     error
	Timestamp time.Time
}

func (*SubmitRetrying) eventMarker() {}
