package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks a GORM driver for dsn: PostgreSQL for postgres:// and
// postgresql:// urls or key=value strings containing host=, SQLite otherwise
// (a file path or ":memory:").
func Dialector(dsn string) gorm.Dialector {
	if isPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Open connects to dsn, sizes the connection pool and migrates the schema.
func Open(ctx context.Context, dsn string, opts ...OpenOption) (*GormStorage, error) {
	cfg := defaultOpenConfig(dsn)
	for _, opt := range opts {
		opt.applyOpen(&cfg)
	}
	if isMemory(dsn) {
		cfg.MaxOpenConns, cfg.MaxIdleConns = 1, 1
	}

	db, err := gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := cfg.configurePool(db); err != nil {
		return nil, err
	}

	s := NewGormStorage(db)
	if !cfg.SkipMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate history database: %w", err)
		}
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
