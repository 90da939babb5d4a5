// Package reconcile maps remote job representations onto local records.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/expresswash/jobsync/pkg/core"
	intctx "github.com/expresswash/jobsync/pkg/internal/context"
)

// Option configures an Engine.
type Option interface {
	apply(*Engine)
}

type optionFunc func(*Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	})
}

// Engine finds or creates the local record for a representation.
type Engine struct {
	relations core.Relations
	logger    *slog.Logger
}

// New creates an Engine that resolves relations through rel.
func New(rel core.Relations, opts ...Option) *Engine {
	e := &Engine{relations: rel, logger: slog.Default()}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Relations returns the lookups the engine resolves through.
func (e *Engine) Relations() core.Relations {
	return e.relations
}

// Reconcile stages rep into tx and returns the staged record. An existing
// record with the same id is overwritten in place; otherwise a new one is
// created. Nothing is visible outside tx until the caller commits.
func (e *Engine) Reconcile(tx core.Tx, rep core.Representation) (*core.Job, error) {
	existing, err := tx.FindByID(rep.JobID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		job, err := e.Build(tx.Context(), rep)
		if err != nil {
			return nil, err
		}
		if err := tx.Create(job); err != nil {
			return nil, err
		}
		return job, nil
	}

	if err := e.Apply(tx.Context(), existing, rep); err != nil {
		return nil, err
	}
	if err := tx.Save(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ReconcileAll stages every representation in order and returns the records
// in the same order. The first failure stops the batch.
func (e *Engine) ReconcileAll(tx core.Tx, reps []core.Representation) ([]*core.Job, error) {
	jobs := make([]*core.Job, 0, len(reps))
	for _, rep := range reps {
		job, err := e.Reconcile(tx, rep)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Build creates a fresh record from rep with relations resolved.
func (e *Engine) Build(ctx context.Context, rep core.Representation) (*core.Job, error) {
	job := core.NewJob(rep)
	if err := e.resolve(ctx, job, rep); err != nil {
		return nil, err
	}
	return job, nil
}

// Apply overwrites every field of job from rep. Relations that no longer
// resolve are cleared. A backwards state move is logged and kept.
func (e *Engine) Apply(ctx context.Context, job *core.Job, rep core.Representation) error {
	if job.State != rep.State && !core.CanTransition(job.State, rep.State) {
		e.logger.Warn("remote moved job to an unexpected state",
			"job_id", rep.JobID,
			"from", job.State,
			"to", rep.State,
			"op", intctx.OpFrom(ctx),
		)
	}
	job.ApplyScalars(rep)
	return e.resolve(ctx, job, rep)
}

func (e *Engine) resolve(ctx context.Context, job *core.Job, rep core.Representation) error {
	client, err := e.findUser(ctx, rep.ClientID)
	if err != nil {
		return err
	}
	job.SetClient(client)

	var washer *core.Washer
	if rep.WasherID != nil {
		if washer, err = e.findWasher(ctx, *rep.WasherID); err != nil {
			return err
		}
	}
	job.SetWasher(washer)

	car, err := e.findCar(ctx, rep.CarID)
	if err != nil {
		return err
	}
	job.SetCar(car)
	return nil
}

func (e *Engine) findUser(ctx context.Context, id int) (*core.User, error) {
	if e.relations.Users == nil || id <= 0 {
		return nil, nil
	}
	u, err := e.relations.Users.FindUser(ctx, id)
	if err != nil {
		return nil, &core.PersistenceError{Op: "resolve client", Err: err}
	}
	return u, nil
}

func (e *Engine) findWasher(ctx context.Context, id int) (*core.Washer, error) {
	if e.relations.Washers == nil || id <= 0 {
		return nil, nil
	}
	w, err := e.relations.Washers.FindWasher(ctx, id)
	if err != nil {
		return nil, &core.PersistenceError{Op: "resolve washer", Err: err}
	}
	return w, nil
}

func (e *Engine) findCar(ctx context.Context, id int) (*core.Car, error) {
	if e.relations.Cars == nil || id <= 0 {
		return nil, nil
	}
	c, err := e.relations.Cars.FindCar(ctx, id)
	if err != nil {
		return nil, &core.PersistenceError{Op: "resolve car", Err: err}
	}
	return c, nil
}
