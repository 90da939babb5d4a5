package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/expresswash/jobsync/pkg/core"
)

// Syncer refreshes the local store from the remote service.
// *lifecycle.Controller satisfies it.
type Syncer interface {
	SyncUser(ctx context.Context, userID int) ([]*core.Job, error)
	SyncWasher(ctx context.Context, washerID int) ([]*core.Job, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunTimeout bounds each sync run. Default: 1 minute.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Scheduler runs recurring user and washer syncs. A run that is still going
// when its next tick arrives makes that tick skip.
type Scheduler struct {
	syncer  Syncer
	logger  *slog.Logger
	timeout time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped Scheduler.
func New(syncer Syncer, opts ...Option) *Scheduler {
	s := &Scheduler{
		syncer:  syncer,
		logger:  slog.Default(),
		timeout: time.Minute,
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// SyncUser schedules a recurring sync of a user's jobs.
// Scheduling the same user again replaces the earlier entry.
func (s *Scheduler) SyncUser(sched Schedule, userID int) cron.EntryID {
	name := fmt.Sprintf("user:%d", userID)
	return s.add(name, sched, func(ctx context.Context) ([]*core.Job, error) {
		return s.syncer.SyncUser(ctx, userID)
	})
}

// SyncWasher schedules a recurring sync of a washer's jobs.
// Scheduling the same washer again replaces the earlier entry.
func (s *Scheduler) SyncWasher(sched Schedule, washerID int) cron.EntryID {
	name := fmt.Sprintf("washer:%d", washerID)
	return s.add(name, sched, func(ctx context.Context) ([]*core.Job, error) {
		return s.syncer.SyncWasher(ctx, washerID)
	})
}

// SyncUserSpec is SyncUser with a cron expression or descriptor.
func (s *Scheduler) SyncUserSpec(spec string, userID int) (cron.EntryID, error) {
	sched, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	return s.SyncUser(sched, userID), nil
}

// SyncWasherSpec is SyncWasher with a cron expression or descriptor.
func (s *Scheduler) SyncWasherSpec(spec string, washerID int) (cron.EntryID, error) {
	sched, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	return s.SyncWasher(sched, washerID), nil
}

// Remove unschedules the entry registered under name ("user:<id>" or "washer:<id>").
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

// Entries returns the scheduled entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Entry returns the entry with the given id.
func (s *Scheduler) Entry(id cron.EntryID) cron.Entry {
	return s.cron.Entry(id)
}

// Start begins running entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running syncs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) add(name string, sched Schedule, run func(ctx context.Context) ([]*core.Job, error)) cron.EntryID {
	job := cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		jobs, err := run(ctx)
		if err != nil {
			s.logger.Error("scheduled sync failed", "entry", name, "error", err)
			return
		}
		s.logger.Info("scheduled sync finished", "entry", name, "jobs", len(jobs), "duration", time.Since(start))
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	id := s.cron.Schedule(sched, job)
	s.entries[name] = id
	return id
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
