package storage

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenConfig controls how Open connects to a history database.
type OpenConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// LogLevel is the gorm logger level. Default: logger.Silent
	LogLevel logger.LogLevel

	// SkipMigrate leaves the schema alone.
	SkipMigrate bool
}

// defaultOpenConfig sizes the pool for dsn. SQLite allows one writer, so a
// file database gets a single connection; history writes are short.
func defaultOpenConfig(dsn string) OpenConfig {
	cfg := OpenConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		LogLevel:        logger.Silent,
	}
	switch {
	case isMemory(dsn):
		// every connection to an in-memory database sees a different one
		cfg.MaxOpenConns, cfg.MaxIdleConns = 1, 1
		cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime = 0, 0
	case !isPostgres(dsn):
		cfg.MaxOpenConns, cfg.MaxIdleConns = 1, 1
	}
	return cfg
}

// OpenOption configures Open.
type OpenOption interface {
	applyOpen(*OpenConfig)
}

type openOptionFunc func(*OpenConfig)

func (f openOptionFunc) applyOpen(c *OpenConfig) { f(c) }

// WithPool overrides the connection counts. Ignored for in-memory databases.
func WithPool(maxOpen, maxIdle int) OpenOption {
	return openOptionFunc(func(c *OpenConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	})
}

// WithConnLifetime sets how long a connection may live and sit idle.
func WithConnLifetime(lifetime, idle time.Duration) OpenOption {
	return openOptionFunc(func(c *OpenConfig) {
		c.ConnMaxLifetime = lifetime
		c.ConnMaxIdleTime = idle
	})
}

// WithLogLevel enables gorm query logging.
func WithLogLevel(level logger.LogLevel) OpenOption {
	return openOptionFunc(func(c *OpenConfig) {
		c.LogLevel = level
	})
}

// WithoutMigrate skips schema migration.
func WithoutMigrate() OpenOption {
	return openOptionFunc(func(c *OpenConfig) {
		c.SkipMigrate = true
	})
}

func (c OpenConfig) configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	return nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=")
}
