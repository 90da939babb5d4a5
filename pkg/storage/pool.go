package storage

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig holds connection pool configuration for the local store.
type PoolConfig struct {
	// MaxOpenConns caps open connections. Default: 10
	MaxOpenConns int

	// MaxIdleConns caps idle connections. Default: 5
	MaxIdleConns int

	// ConnMaxLifetime bounds connection reuse. Default: 5 minutes
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime bounds how long a connection may sit idle. Default: 1 minute
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool used for file and server databases.
// Writes are serialized by the store writer, so a small pool is enough.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// InMemoryPoolConfig pins an in-memory SQLite database to one connection.
// Every new connection to ":memory:" opens a different empty database.
func InMemoryPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// PoolOption configures connection pool settings.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// MaxOpenConns sets the maximum number of open connections.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxOpenConns = n
	})
}

// MaxIdleConns sets the maximum number of idle connections.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxIdleConns = n
	})
}

// ConnMaxLifetime sets the maximum connection lifetime. Zero means no limit.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxLifetime = d
	})
}

// ConnMaxIdleTime sets the maximum idle time for connections. Zero means no limit.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxIdleTime = d
	})
}

func applyPool(db *gorm.DB, config PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	return nil
}

// ConfigurePool applies DefaultPoolConfig, overridden by opts, to db.
func ConfigurePool(db *gorm.DB, opts ...PoolOption) error {
	config := DefaultPoolConfig()
	for _, opt := range opts {
		opt.applyPool(&config)
	}
	return applyPool(db, config)
}

// IsPostgresDSN reports whether dsn should be opened with the PostgreSQL driver.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// IsInMemoryDSN reports whether dsn names an in-memory SQLite database.
func IsInMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Open connects to the database named by dsn and returns a pooled storage.
//
// postgres:// and postgresql:// DSNs use PostgreSQL. Anything else is a
// SQLite path; an empty DSN or ":memory:" opens a private in-memory database
// with a single connection, and opts are ignored for it.
//
// Example:
//
//	store, err := storage.Open("file:jobs.db?_busy_timeout=5000",
//	    storage.MaxOpenConns(4),
//	)
func Open(dsn string, opts ...PoolOption) (*GormStorage, error) {
	var dialector gorm.Dialector
	config := DefaultPoolConfig()
	pinned := false

	switch {
	case IsPostgresDSN(dsn):
		dialector = postgres.Open(dsn)
	case IsInMemoryDSN(dsn):
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
		config = InMemoryPoolConfig()
		pinned = true
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobsync: open store: %w", err)
	}

	if !pinned {
		for _, opt := range opts {
			opt.applyPool(&config)
		}
	}
	if err := applyPool(db, config); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}

// NewGormStorageWithPool creates a GORM-backed storage with connection pooling configured.
func NewGormStorageWithPool(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if err := ConfigurePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
