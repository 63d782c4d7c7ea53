package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// DefaultListLimit is used when a filter sets no limit.
const DefaultListLimit = 50

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed history store.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.JobRecord{})
}

// SaveJob inserts rec or overwrites the record with the same ID.
func (s *GormStorage) SaveJob(ctx context.Context, rec *core.JobRecord) error {
	if rec.ID == "" {
		return errors.New("jobs: job record without id")
	}
	if rec.Status == "" {
		rec.Status = core.StatusStarting
	}
	rec.LastError = security.SanitizeErrorMessage(rec.LastError)
	return s.db.WithContext(ctx).Save(rec).Error
}

// GetJob retrieves a record by ID.
func (s *GormStorage) GetJob(ctx context.Context, id string) (*core.JobRecord, error) {
	var rec core.JobRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListJobs returns records matching the filter, newest first, with the
// total count before pagination.
func (s *GormStorage) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.JobRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.JobRecord{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.APIName != "" {
		q = q.Where("api_name = ?", security.NormalizeAPIName(filter.APIName))
	}
	if filter.SessionHash != "" {
		q = q.Where("session_hash = ?", filter.SessionHash)
	}
	if !filter.Since.IsZero() {
		q = q.Where("submitted_at >= ?", filter.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var recs []*core.JobRecord
	err := q.Order("submitted_at DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// DeleteJob removes the record with the given id.
func (s *GormStorage) DeleteJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&core.JobRecord{}).Error
}

// PurgeJobs deletes terminal records completed before the cutoff.
func (s *GormStorage) PurgeJobs(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ?", []core.StatusCode{core.StatusFinished, core.StatusCancelled}).
		Where("completed_at < ?", before).
		Delete(&core.JobRecord{})
	return result.RowsAffected, result.Error
}

// Summary counts records by outcome.
type Summary struct {
	Total     int64
	Succeeded int64
	Failed    int64
	Cancelled int64
	Running   int64
}

// Summarize counts every record by outcome.
func (s *GormStorage) Summarize(ctx context.Context) (*Summary, error) {
	type row struct {
		Status string
		Failed bool
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Select("status, (last_error <> '') AS failed, count(*) AS count").
		Group("status, (last_error <> '')").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, r := range rows {
		sum.Total += r.Count
		switch {
		case core.StatusCode(r.Status) == core.StatusCancelled:
			sum.Cancelled += r.Count
		case core.StatusCode(r.Status) != core.StatusFinished:
			sum.Running += r.Count
		case r.Failed:
			sum.Failed += r.Count
		default:
			sum.Succeeded += r.Count
		}
	}
	return sum, nil
}

var _ core.Storage = (*GormStorage)(nil)
