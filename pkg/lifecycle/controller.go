// Package lifecycle runs job operations end to end: the remote call, the
// reconciliation into the local store and the commit.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/events"
	intctx "github.com/expresswash/jobsync/pkg/internal/context"
	"github.com/expresswash/jobsync/pkg/reconcile"
	"github.com/expresswash/jobsync/pkg/security"
	"github.com/expresswash/jobsync/pkg/worker"
)

// Remote is the remote job service as seen by the controller.
type Remote interface {
	CreateRepresentation(ctx context.Context, rep core.Representation) (core.Representation, error)
	FetchOne(ctx context.Context, jobID int) (*core.Job, error)
	FetchForUser(ctx context.Context, userID int) ([]core.Representation, error)
	FetchForWasher(ctx context.Context, washerID int) ([]core.Representation, error)
	AssignWasher(ctx context.Context, jobID, washerID int) (core.Representation, error)
	Revise(ctx context.Context, rep core.Representation) ([]core.Representation, error)
	Delete(ctx context.Context, jobID int) (string, error)
}

// Controller coordinates the remote service and the local store.
// All store work runs on a single writer so units never interleave.
type Controller struct {
	remote Remote
	store  core.Store
	engine *reconcile.Engine

	writer     *worker.Writer
	writerOpts []worker.WriterOption
	ownsWriter bool

	bus    *events.Bus
	mode   CommitMode
	logger *slog.Logger
}

// NewController creates a controller. Close releases the writer it creates.
func NewController(remote Remote, store core.Store, engine *reconcile.Engine, opts ...Option) *Controller {
	c := &Controller{
		remote: remote,
		store:  store,
		engine: engine,
		mode:   WriteThrough,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	if c.writer == nil {
		c.writer = worker.NewWriter(append([]worker.WriterOption{worker.WithLogger(c.logger)}, c.writerOpts...)...)
		c.ownsWriter = true
	}
	return c
}

// Mode returns the controller's commit mode.
func (c *Controller) Mode() CommitMode {
	return c.mode
}

// Close waits for queued store work and stops the writer if the controller owns it.
func (c *Controller) Close() {
	if c.ownsWriter {
		c.writer.Close()
	}
}

// afterFunc runs inside the unit after the representation was reconciled.
type afterFunc func(tx core.Tx, job *core.Job) error

// Create creates a job remotely and reconciles the service's answer.
func (c *Controller) Create(ctx context.Context, rep core.Representation) (*core.Job, error) {
	created, err := c.remote.CreateRepresentation(ctx, rep)
	if err != nil {
		return nil, err
	}
	return c.persist(ctx, "create", created, core.EventJobCreated, nil)
}

// Update revises a job remotely and reconciles the first representation the
// service answers with. An empty answer returns core.ErrNoRevision.
func (c *Controller) Update(ctx context.Context, rep core.Representation) (*core.Job, error) {
	revised, err := c.remote.Revise(ctx, rep)
	if err != nil {
		return nil, err
	}
	if len(revised) == 0 {
		c.logger.Warn("revise returned no representations", "job_id", rep.JobID)
		return nil, core.ErrNoRevision
	}
	return c.persist(ctx, "update", revised[0], core.EventJobUpdated, nil)
}

// UpdateLocal overwrites job from rep without contacting the service.
// It always waits for the commit, and job is modified only when the commit
// succeeds. A state move that CanTransition forbids is rejected; a label
// outside the known set is accepted only when it is already stored.
func (c *Controller) UpdateLocal(ctx context.Context, job *core.Job, rep core.Representation) (*core.Job, error) {
	if job == nil || job.JobID != rep.JobID {
		return nil, core.ErrJobMismatch
	}

	var updated *core.Job
	err := c.writer.Do(ctx, func(wctx context.Context) error {
		tx, err := c.store.Begin(intctx.WithOp(wctx, "update local"))
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		target, err := tx.FindByID(job.JobID)
		if err != nil {
			return err
		}
		if target == nil {
			clone := *job
			target = &clone
		}
		if rep.State != target.State && !rep.State.Valid() {
			return fmt.Errorf("%w: %q", core.ErrInvalidState, rep.State)
		}
		if !core.CanTransition(target.State, rep.State) {
			return fmt.Errorf("%w: %s to %s", core.ErrIllegalTransition, target.State, rep.State)
		}
		if err := c.engine.Apply(tx.Context(), target, rep); err != nil {
			return err
		}
		if err := tx.Save(target); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		c.logger.Error("local update failed", "job_id", job.JobID, "error", security.SanitizeErrorMessage(err.Error()))
		return nil, err
	}

	*job = *updated
	c.publish(ctx, core.EventJobUpdated, "update local", job.JobID, job.Representation(), "", nil)
	return job, nil
}

// AssignWasher asks the service to assign a washer, reconciles the answer,
// and attaches the washer when it resolves locally.
func (c *Controller) AssignWasher(ctx context.Context, job *core.Job, washerID int) (*core.Job, error) {
	if job == nil {
		return nil, core.ErrJobMismatch
	}
	rep, err := c.remote.AssignWasher(ctx, job.JobID, washerID)
	if err != nil {
		return nil, err
	}

	attach := func(tx core.Tx, staged *core.Job) error {
		washers := c.engine.Relations().Washers
		if washers == nil {
			return nil
		}
		w, err := washers.FindWasher(tx.Context(), washerID)
		if err != nil {
			return &core.PersistenceError{Op: "resolve washer", Err: err}
		}
		if w == nil {
			return nil
		}
		staged.SetWasher(w)
		return tx.Save(staged)
	}
	return c.persist(ctx, "assign", rep, core.EventJobAssigned, attach)
}

// Delete deletes a job remotely and, once the service confirmed, removes the
// local record. The confirmation message is returned.
func (c *Controller) Delete(ctx context.Context, job *core.Job) (string, error) {
	if job == nil {
		return "", core.ErrJobMismatch
	}
	msg, err := c.remote.Delete(ctx, job.JobID)
	if err != nil {
		return "", err
	}

	err = c.writer.Do(ctx, func(wctx context.Context) error {
		tx, err := c.store.Begin(intctx.WithOp(wctx, "delete"))
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := tx.Delete(job); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		c.logger.Error("local delete failed", "job_id", job.JobID, "error", security.SanitizeErrorMessage(err.Error()))
		return "", err
	}

	c.publish(ctx, core.EventJobDeleted, "delete", job.JobID, core.Representation{}, msg, nil)
	return msg, nil
}

// FetchOne retrieves a job from the service without touching the store.
func (c *Controller) FetchOne(ctx context.Context, jobID int) (*core.Job, error) {
	return c.remote.FetchOne(ctx, jobID)
}

// FetchForUser retrieves a user's jobs from the service without touching the store.
func (c *Controller) FetchForUser(ctx context.Context, userID int) ([]core.Representation, error) {
	return c.remote.FetchForUser(ctx, userID)
}

// FetchForWasher retrieves a washer's jobs from the service without touching the store.
func (c *Controller) FetchForWasher(ctx context.Context, washerID int) ([]core.Representation, error) {
	return c.remote.FetchForWasher(ctx, washerID)
}

// SyncUser fetches a user's jobs and reconciles all of them in one transaction.
func (c *Controller) SyncUser(ctx context.Context, userID int) ([]*core.Job, error) {
	reps, err := c.remote.FetchForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.syncAll(ctx, "sync user", reps)
}

// SyncWasher fetches a washer's jobs and reconciles all of them in one transaction.
func (c *Controller) SyncWasher(ctx context.Context, washerID int) ([]*core.Job, error) {
	reps, err := c.remote.FetchForWasher(ctx, washerID)
	if err != nil {
		return nil, err
	}
	return c.syncAll(ctx, "sync washer", reps)
}

func (c *Controller) syncAll(ctx context.Context, op string, reps []core.Representation) ([]*core.Job, error) {
	var jobs []*core.Job
	err := c.writer.Do(ctx, func(wctx context.Context) error {
		tx, err := c.store.Begin(intctx.WithOp(wctx, op))
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		staged, err := c.engine.ReconcileAll(tx, reps)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		jobs = staged
		return nil
	})
	if err != nil {
		c.logger.Error("sync failed", "op", op, "count", len(reps), "error", security.SanitizeErrorMessage(err.Error()))
		return nil, err
	}

	for _, job := range jobs {
		c.publish(ctx, core.EventJobSynced, op, job.JobID, job.Representation(), "", nil)
	}
	c.logger.Info("jobs synced", "op", op, "count", len(jobs))
	return jobs, nil
}

// stage opens a transaction and reconciles rep into it. On error the
// transaction is already rolled back.
func (c *Controller) stage(ctx context.Context, op string, rep core.Representation, after afterFunc) (core.Tx, *core.Job, error) {
	tx, err := c.store.Begin(intctx.WithOp(ctx, op))
	if err != nil {
		return nil, nil, err
	}
	job, err := c.engine.Reconcile(tx, rep)
	if err == nil && after != nil {
		err = after(tx, job)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	return tx, job, nil
}

// persist reconciles rep and commits according to the commit mode.
func (c *Controller) persist(ctx context.Context, op string, rep core.Representation, evType core.EventType, after afterFunc) (*core.Job, error) {
	if c.mode == WriteBack {
		return c.persistAsync(ctx, op, rep, evType, after)
	}

	var job *core.Job
	err := c.writer.Do(ctx, func(wctx context.Context) error {
		tx, staged, err := c.stage(wctx, op, rep, after)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		job = staged
		return nil
	})
	if err != nil {
		c.logger.Error("reconcile failed", "op", op, "job_id", rep.JobID, "error", security.SanitizeErrorMessage(err.Error()))
		return nil, err
	}

	c.publish(ctx, evType, op, job.JobID, job.Representation(), "", nil)
	return job, nil
}

type stageResult struct {
	job *core.Job
	err error
}

// Claim states of a write-back unit. Whichever side claims first decides
// whether the unit runs or the caller gets its context error.
const (
	unitPending int32 = iota
	unitStarted
	unitAbandoned
)

// persistAsync returns the staged record as soon as it exists and lets the
// writer finish the commit. A caller whose ctx ends before the unit starts
// gets ctx.Err() and the unit never touches the store; once the unit has
// started the caller always gets its result.
func (c *Controller) persistAsync(ctx context.Context, op string, rep core.Representation, evType core.EventType, after afterFunc) (*core.Job, error) {
	ready := make(chan stageResult, 1)
	var claim atomic.Int32

	err := c.writer.Go(context.WithoutCancel(ctx), func(wctx context.Context) error {
		if !claim.CompareAndSwap(unitPending, unitStarted) {
			return nil
		}
		sent := false
		defer func() {
			if !sent {
				ready <- stageResult{err: fmt.Errorf("jobsync: %s: unit aborted", op)}
			}
		}()

		tx, job, err := c.stage(wctx, op, rep, after)
		if err != nil {
			sent = true
			ready <- stageResult{err: err}
			return nil
		}
		snapshot := job.Representation()
		sent = true
		ready <- stageResult{job: job}

		if err := tx.Commit(); err != nil {
			c.commitFailed(op, rep, evType, after, err)
			return nil
		}
		c.publish(wctx, evType, op, snapshot.JobID, snapshot, "", nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var res stageResult
	select {
	case res = <-ready:
	case <-ctx.Done():
		if claim.CompareAndSwap(unitPending, unitAbandoned) {
			return nil, ctx.Err()
		}
		res = <-ready
	}
	if res.err != nil {
		c.logger.Error("reconcile failed", "op", op, "job_id", rep.JobID, "error", security.SanitizeErrorMessage(res.err.Error()))
		return nil, res.err
	}
	return res.job, nil
}

// commitFailed reports a failed write-back commit and schedules its replay.
func (c *Controller) commitFailed(op string, rep core.Representation, evType core.EventType, after afterFunc, commitErr error) {
	ctx := context.Background()
	c.logger.Error("commit failed, scheduling replay", "op", op, "job_id", rep.JobID,
		"error", security.SanitizeErrorMessage(commitErr.Error()))
	c.publish(ctx, core.EventCommitFailed, op, rep.JobID, rep, "", commitErr)

	replayOp := op + " replay"
	err := c.writer.Replay(func(wctx context.Context) error {
		tx, job, err := c.stage(wctx, replayOp, rep, after)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		c.logger.Info("commit replayed", "op", op, "job_id", job.JobID)
		c.publish(wctx, evType, replayOp, job.JobID, job.Representation(), "", nil)
		return nil
	}, func(err error) {
		c.logger.Error("commit replay exhausted", "op", op, "job_id", rep.JobID,
			"error", security.SanitizeErrorMessage(err.Error()))
		c.publish(ctx, core.EventReplayExhausted, op, rep.JobID, rep, "", err)
	})
	if err != nil {
		c.logger.Error("commit replay not scheduled", "op", op, "job_id", rep.JobID, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, typ core.EventType, op string, jobID int, rep core.Representation, msg string, cause error) {
	if c.bus == nil {
		return
	}
	ev := core.Event{
		Type:      typ,
		JobID:     jobID,
		Op:        op,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if rep.JobID != 0 {
		ev.Job = &rep
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := c.bus.Publish(ctx, ev); err != nil {
		c.logger.Warn("failed to publish event", "type", typ, "job_id", jobID, "error", err)
	}
}
