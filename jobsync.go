// Package jobsync keeps a local store of car-wash service jobs in step with
// the remote job service.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages and wires them together.
//
// Basic usage:
//
//	sys, err := jobsync.New(ctx, jobsync.Config{
//	    BaseURL: "https://api.expresswash.example",
//	    Token:   os.Getenv("EXPRESSWASH_TOKEN"),
//	    DSN:     "jobs.db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer sys.Close()
//
//	job, err := sys.Controller.Create(ctx, jobsync.Representation{
//	    Address:  "1 Main St",
//	    ClientID: 42,
//	    CarID:    7,
//	})
package jobsync

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/events"
	"github.com/expresswash/jobsync/pkg/lifecycle"
	"github.com/expresswash/jobsync/pkg/reconcile"
	"github.com/expresswash/jobsync/pkg/remote"
	"github.com/expresswash/jobsync/pkg/schedule"
	"github.com/expresswash/jobsync/pkg/security"
	"github.com/expresswash/jobsync/pkg/storage"
	"github.com/expresswash/jobsync/pkg/worker"
)

// Type aliases
type (
	// Job is the locally persisted record of a service job.
	Job = core.Job

	// Representation is the flat wire form of a job.
	Representation = core.Representation

	// JobState is the lifecycle label of a job.
	JobState = core.JobState

	User   = core.User
	Washer = core.Washer
	Car    = core.Car

	// Store is the local persistence layer.
	Store = core.Store

	// Tx stages job mutations until Commit.
	Tx = core.Tx

	// JobFilter narrows Store.ListJobs.
	JobFilter = core.JobFilter

	// Relations groups the user, washer and car lookups.
	Relations = core.Relations

	// TokenSource supplies the credential for remote requests.
	TokenSource = core.TokenSource

	// StaticToken is a fixed credential.
	StaticToken = remote.StaticToken

	// Event is published after lifecycle operations.
	Event = core.Event

	// EventType names a lifecycle outcome.
	EventType = core.EventType

	// Controller runs job operations against the remote service and the store.
	Controller = lifecycle.Controller

	// CommitMode selects write-through or write-back persistence.
	CommitMode = lifecycle.CommitMode

	// Client is the remote job service client.
	Client = remote.Client

	// GormStorage implements Store using GORM.
	GormStorage = storage.GormStorage

	// Directory resolves users, washers and cars from the local database.
	Directory = storage.Directory

	// Engine reconciles representations into the store.
	Engine = reconcile.Engine

	// Bus fans lifecycle events out to subscribers.
	Bus = events.Bus

	// Scheduler runs recurring syncs.
	Scheduler = schedule.Scheduler

	// Schedule defines when a sync runs next.
	Schedule = schedule.Schedule

	// Writer serializes store mutations.
	Writer = worker.Writer

	NetworkError        = core.NetworkError
	RemoteRejectedError = core.RemoteRejectedError
	EmptyResponseError  = core.EmptyResponseError
	DecodeError         = core.DecodeError
	PersistenceError    = core.PersistenceError
)

// Job states
const (
	StateUnknown    = core.StateUnknown
	StateRequested  = core.StateRequested
	StateScheduled  = core.StateScheduled
	StateAssigned   = core.StateAssigned
	StateInProgress = core.StateInProgress
	StateCompleted  = core.StateCompleted
	StatePaid       = core.StatePaid
	StateCancelled  = core.StateCancelled
)

// Commit modes
const (
	WriteThrough = lifecycle.WriteThrough
	WriteBack    = lifecycle.WriteBack
)

// Event types
const (
	EventJobCreated      = core.EventJobCreated
	EventJobUpdated      = core.EventJobUpdated
	EventJobAssigned     = core.EventJobAssigned
	EventJobDeleted      = core.EventJobDeleted
	EventJobSynced       = core.EventJobSynced
	EventCommitFailed    = core.EventCommitFailed
	EventReplayExhausted = core.EventReplayExhausted
)

// Security limits
const (
	MaxResponseBodySize   = security.MaxResponseBodySize
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxReplayAttempts     = security.MaxReplayAttempts
)

// OpenStore opens the database named by dsn. postgres:// URLs use
// PostgreSQL; anything else is a SQLite path, and an empty DSN is an
// in-memory database.
func OpenStore(dsn string, opts ...storage.PoolOption) (*GormStorage, error) {
	return storage.Open(dsn, opts...)
}

// NewGormStorage wraps an existing GORM handle.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewDirectory creates relation lookups over db.
func NewDirectory(db *gorm.DB) *Directory {
	return storage.NewDirectory(db)
}

// NewClient creates a remote job service client.
func NewClient(baseURL string, tokens TokenSource, opts ...remote.Option) (*Client, error) {
	return remote.NewClient(baseURL, tokens, opts...)
}

// NewEngine creates a reconciliation engine.
func NewEngine(rel Relations, opts ...reconcile.Option) *Engine {
	return reconcile.New(rel, opts...)
}

// NewController creates a lifecycle controller.
func NewController(r lifecycle.Remote, store Store, engine *Engine, opts ...lifecycle.Option) *Controller {
	return lifecycle.NewController(r, store, engine, opts...)
}

// NewBus creates an in-process event bus.
func NewBus() *Bus {
	return events.NewBus()
}

// NewScheduler creates a sync scheduler.
func NewScheduler(syncer schedule.Syncer, opts ...schedule.Option) *Scheduler {
	return schedule.New(syncer, opts...)
}

// ParseCommitMode parses "write-through" or "write-back".
func ParseCommitMode(s string) (CommitMode, error) {
	return lifecycle.ParseCommitMode(s)
}

// CanTransition reports whether a job may move between two states.
func CanTransition(from, to JobState) bool {
	return core.CanTransition(from, to)
}

// Config describes a complete System.
type Config struct {
	// BaseURL is the root of the remote job service.
	BaseURL string

	// Token is attached verbatim as the Authorization header.
	// Tokens overrides it when set.
	Token  string
	Tokens TokenSource

	// DSN names the local database. Empty means in-memory.
	DSN string

	Mode   CommitMode
	Logger *slog.Logger

	ClientOptions []remote.Option
	WriterOptions []worker.WriterOption
	PoolOptions   []storage.PoolOption
}

// System is a wired set of components sharing one store.
type System struct {
	Store      *GormStorage
	Directory  *Directory
	Client     *Client
	Engine     *Engine
	Bus        *Bus
	Controller *Controller
}

// New opens and migrates the store and wires every component around it.
func New(ctx context.Context, cfg Config) (*System, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(cfg.DSN, cfg.PoolOptions...)
	if err != nil {
		return nil, err
	}
	store.WithLogger(logger)
	if err := store.Migrate(ctx); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("jobsync: migrate: %w", err)
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken(cfg.Token)
	}
	clientOpts := append([]remote.Option{remote.WithLogger(logger)}, cfg.ClientOptions...)
	client, err := remote.NewClient(cfg.BaseURL, tokens, clientOpts...)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	dir := storage.NewDirectory(store.DB())
	engine := reconcile.New(dir.Relations(), reconcile.WithLogger(logger))
	bus := events.NewBus()
	ctrl := lifecycle.NewController(client, store, engine,
		lifecycle.WithCommitMode(cfg.Mode),
		lifecycle.WithLogger(logger),
		lifecycle.WithEventBus(bus),
		lifecycle.WithWriterOptions(cfg.WriterOptions...),
	)

	return &System{
		Store:      store,
		Directory:  dir,
		Client:     client,
		Engine:     engine,
		Bus:        bus,
		Controller: ctrl,
	}, nil
}

// Close drains pending store work, then closes the bus and the database.
func (s *System) Close() error {
	s.Controller.Close()
	busErr := s.Bus.Close()
	closeStore(s.Store)
	return busErr
}

func closeStore(s *GormStorage) {
	if sqlDB, err := s.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}
