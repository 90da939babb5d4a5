// Package storage provides storage implementations for the jobsync package.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/expresswash/jobsync/pkg/core"
	intctx "github.com/expresswash/jobsync/pkg/internal/context"
)

// GormStorage implements core.Store using GORM.
type GormStorage struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db, logger: slog.Default()}
}

// WithLogger replaces the logger used for rollback diagnostics.
func (s *GormStorage) WithLogger(l *slog.Logger) *GormStorage {
	if l != nil {
		s.logger = l
	}
	return s
}

// DB returns the underlying GORM handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on the SQLite dialect.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.User{}, &core.Washer{}, &core.Car{}, &core.Job{})
}

// Begin opens a scoped transaction.
func (s *GormStorage) Begin(ctx context.Context) (core.Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, &core.PersistenceError{Op: "begin", Err: tx.Error}
	}
	return &gormTx{
		tx:     tx,
		ctx:    intctx.WithTx(ctx, tx),
		logger: s.logger,
	}, nil
}

// GetJob retrieves a committed job by id with its relations.
func (s *GormStorage) GetJob(ctx context.Context, jobID int) (*core.Job, error) {
	var job core.Job
	err := withRelations(s.db.WithContext(ctx)).First(&job, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns committed jobs matching the filter, ordered by job id.
func (s *GormStorage) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, error) {
	q := withRelations(s.db.WithContext(ctx).Model(&core.Job{}))

	if filter.ClientID != nil {
		q = q.Where("client_id = ?", *filter.ClientID)
	}
	if filter.WasherID != nil {
		q = q.Where("washer_id = ?", *filter.WasherID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var jobs []*core.Job
	err := q.Order("job_id ASC").Find(&jobs).Error
	return jobs, err
}

// CountJobs returns the number of committed records with the given id.
func (s *GormStorage) CountJobs(ctx context.Context, jobID int) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&core.Job{}).Where("job_id = ?", jobID).Count(&count).Error
	return count, err
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Client").Preload("Washer").Preload("Car")
}

// gormTx implements core.Tx over a GORM transaction.
type gormTx struct {
	tx     *gorm.DB
	ctx    context.Context
	logger *slog.Logger
	done   bool
}

func (t *gormTx) Context() context.Context {
	return t.ctx
}

// FindByID looks the job up inside the transaction.
// More than one match is treated as not found.
func (t *gormTx) FindByID(jobID int) (*core.Job, error) {
	var matched []*core.Job
	err := withRelations(t.tx).
		Where("job_id = ?", jobID).
		Limit(2).
		Find(&matched).Error
	if err != nil {
		return nil, &core.PersistenceError{Op: "find job", Err: err}
	}
	if len(matched) != 1 {
		if len(matched) > 1 {
			t.logger.Warn("duplicate job records", "job_id", jobID)
		}
		return nil, nil
	}
	return matched[0], nil
}

// Create stages a new record. Related entities are never written.
func (t *gormTx) Create(job *core.Job) error {
	if err := t.tx.Omit(clause.Associations).Create(job).Error; err != nil {
		return &core.PersistenceError{Op: "stage create", Err: err}
	}
	return nil
}

// Save stages a full overwrite of every column, including NULL relation ids.
func (t *gormTx) Save(job *core.Job) error {
	if err := t.tx.Omit(clause.Associations).Save(job).Error; err != nil {
		return &core.PersistenceError{Op: "stage save", Err: err}
	}
	return nil
}

// Delete stages removal of the record.
func (t *gormTx) Delete(job *core.Job) error {
	if err := t.tx.Delete(&core.Job{}, "job_id = ?", job.JobID).Error; err != nil {
		return &core.PersistenceError{Op: "stage delete", Err: err}
	}
	return nil
}

// Commit makes every staged mutation visible at once.
func (t *gormTx) Commit() error {
	if t.done {
		return &core.PersistenceError{Op: "commit", Err: gorm.ErrInvalidTransaction}
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		if rbErr := t.tx.Rollback().Error; rbErr != nil && !txFinished(rbErr) {
			t.logger.Error("rollback after failed commit", "error", rbErr)
		}
		return &core.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// txFinished reports whether err only says the transaction already ended,
// which is what a rollback after a failed commit normally returns.
func txFinished(err error) bool {
	return errors.Is(err, sql.ErrTxDone) || errors.Is(err, gorm.ErrInvalidTransaction)
}

// Rollback discards staged mutations. It is a no-op once the transaction finished.
func (t *gormTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback().Error; err != nil {
		return &core.PersistenceError{Op: "rollback", Err: err}
	}
	return nil
}
