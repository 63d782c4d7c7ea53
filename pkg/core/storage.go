package core

import (
	"context"
	"time"
)

// JobFilter holds search criteria for job history.
type JobFilter struct {
	Status      StatusCode
	APIName     string
	SessionHash string
	Since       time.Time
	Limit       int
	Offset      int
}

// Storage persists job history. The client writes a record when a job is
// submitted and again when it reaches a terminal state.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// SaveJob inserts or updates a record by ID.
	SaveJob(ctx context.Context, rec *JobRecord) error

	// GetJob returns nil, nil when the record does not exist.
	GetJob(ctx context.Context, id string) (*JobRecord, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*JobRecord, int64, error)

	// DeleteJob removes a record. Deleting a missing record is not an error.
	DeleteJob(ctx context.Context, id string) error

	// PurgeJobs deletes terminal records completed before the cutoff.
	PurgeJobs(ctx context.Context, before time.Time) (int64, error)
}
