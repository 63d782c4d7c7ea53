package core

import (
	"time"
)

// JobRecord is the persisted history entry for one submitted job.
type JobRecord struct {
	ID          string     `gorm:"primaryKey;size:36"`
	EventID     string     `gorm:"index;size:64"` // Server-assigned queue id, empty when the queue is disabled
	APIName     string     `gorm:"index;size:255"`
	FnIndex     *int
	SessionHash string     `gorm:"index;size:64;not null"`
	Status      StatusCode `gorm:"index;size:20;default:'STARTING'"`
	Args        []byte     `gorm:"type:bytes"`
	Result      []byte     `gorm:"type:bytes"` // JSON-encoded final Output
	OutputCount int        `gorm:"default:0"`
	LastError   string     `gorm:"type:text"`
	SubmittedAt time.Time  `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Failed reports whether the job ended with an error rather than a result.
func (r *JobRecord) Failed() bool {
	return r.Status == StatusFinished && r.LastError != ""
}
