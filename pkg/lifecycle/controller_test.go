package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/worker"
)

// ──────────────────────────────────────────────────────────────────────────────
// Create / Update
// ──────────────────────────────────────────────────────────────────────────────

func TestCreate_WriteThroughCommitsBeforeReturning(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(10)

	job, err := h.ctrl.Create(context.Background(), core.Representation{Address: "9 Oak Ave"})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 10, job.JobID)
	require.NotNil(t, job.Client)
	assert.Equal(t, "Ada", job.Client.FirstName)
	require.NotNil(t, job.Car)

	stored := h.stored(t, 10)
	require.NotNil(t, stored, "record must be committed when Create returns")
	assert.Equal(t, "9 Oak Ave", stored.Address)

	ev := h.waitEvent(t, core.EventJobCreated)
	assert.Equal(t, 10, ev.JobID)
	assert.Equal(t, "create", ev.Op)
}

func TestCreate_RemoteRejectedLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	h.remote.err = &core.RemoteRejectedError{Op: "create", StatusCode: http.StatusBadRequest}

	job, err := h.ctrl.Create(context.Background(), sampleRep(11))
	assert.Nil(t, job)
	assert.Equal(t, http.StatusBadRequest, core.StatusCode(err))

	all, err := h.db.ListJobs(context.Background(), core.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_CommitFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(12)
	h.store.failCommits.Store(1)

	job, err := h.ctrl.Create(context.Background(), sampleRep(12))
	assert.Nil(t, job)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, h.stored(t, 12))
}

func TestUpdate_ReconcilesFirstRepresentation(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(13)
	_, err := h.ctrl.Create(context.Background(), sampleRep(13))
	require.NoError(t, err)

	first := sampleRep(13)
	first.Notes = "first"
	first.State = core.StateScheduled
	second := sampleRep(13)
	second.Notes = "second"
	h.remote.revised = []core.Representation{first, second}

	job, err := h.ctrl.Update(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "first", job.Notes)

	count, err := h.db.CountJobs(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, core.StateScheduled, h.stored(t, 13).State)
}

func TestUpdate_EmptyRevisionReportsNoRevision(t *testing.T) {
	h := newHarness(t)
	h.remote.revised = []core.Representation{}

	job, err := h.ctrl.Update(context.Background(), sampleRep(14))
	assert.Nil(t, job)
	assert.ErrorIs(t, err, core.ErrNoRevision)
	assert.Nil(t, h.stored(t, 14))
}

// ──────────────────────────────────────────────────────────────────────────────
// UpdateLocal
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateLocal_OverwritesAndCommits(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(20)
	job, err := h.ctrl.Create(context.Background(), sampleRep(20))
	require.NoError(t, err)

	rep := sampleRep(20)
	rep.State = core.StateScheduled
	rep.Scheduled = true
	rep.Notes = "call on arrival"

	updated, err := h.ctrl.UpdateLocal(context.Background(), job, rep)
	require.NoError(t, err)
	assert.Same(t, job, updated)
	assert.Equal(t, "call on arrival", job.Notes)

	stored := h.stored(t, 20)
	assert.True(t, stored.Scheduled)
	assert.Equal(t, core.StateScheduled, stored.State)
	assert.Equal(t, "call on arrival", stored.Notes)
}

func TestUpdateLocal_CommitFailureLeavesEverythingUnchanged(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(21)
	job, err := h.ctrl.Create(context.Background(), sampleRep(21))
	require.NoError(t, err)

	rep := sampleRep(21)
	rep.State = core.StateInProgress
	rep.Address = "elsewhere"
	rep.Notes = "changed"
	rep.Paid = true
	rep.CarID = 0

	h.store.failCommits.Store(1)
	updated, err := h.ctrl.UpdateLocal(context.Background(), job, rep)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, "9 Oak Ave", job.Address, "caller's job must not change")
	assert.Equal(t, core.StateRequested, job.State)
	assert.NotNil(t, job.Car)

	stored := h.stored(t, 21)
	assert.Equal(t, "9 Oak Ave", stored.Address)
	assert.Empty(t, stored.Notes)
	assert.False(t, stored.Paid)
	assert.Equal(t, core.StateRequested, stored.State)
	require.NotNil(t, stored.CarID)
	assert.Equal(t, 3, *stored.CarID)
}

func TestUpdateLocal_Validation(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(22)
	job, err := h.ctrl.Create(context.Background(), sampleRep(22))
	require.NoError(t, err)

	t.Run("mismatched id", func(t *testing.T) {
		_, err := h.ctrl.UpdateLocal(context.Background(), job, sampleRep(99))
		assert.ErrorIs(t, err, core.ErrJobMismatch)
	})

	t.Run("nil job", func(t *testing.T) {
		_, err := h.ctrl.UpdateLocal(context.Background(), nil, sampleRep(22))
		assert.ErrorIs(t, err, core.ErrJobMismatch)
	})

	t.Run("unknown state", func(t *testing.T) {
		rep := sampleRep(22)
		rep.State = "washing"
		_, err := h.ctrl.UpdateLocal(context.Background(), job, rep)
		assert.ErrorIs(t, err, core.ErrInvalidState)
	})

	t.Run("illegal transition", func(t *testing.T) {
		rep := sampleRep(22)
		rep.State = core.StatePaid
		_, err := h.ctrl.UpdateLocal(context.Background(), job, rep)
		assert.ErrorIs(t, err, core.ErrIllegalTransition)
		assert.Equal(t, core.StateRequested, h.stored(t, 22).State)
	})
}

func TestUpdateLocal_RemoteLabelOutsideKnownStates(t *testing.T) {
	h := newHarness(t)
	created := sampleRep(24)
	created.State = "pending"
	h.remote.created = created

	job, err := h.ctrl.Create(context.Background(), sampleRep(24))
	require.NoError(t, err)
	require.Equal(t, core.JobState("pending"), h.stored(t, 24).State, "remote label is stored as received")

	same := sampleRep(24)
	same.State = "pending"
	same.Notes = "ring twice"
	job, err = h.ctrl.UpdateLocal(context.Background(), job, same)
	require.NoError(t, err, "keeping the stored label is allowed")
	assert.Equal(t, "ring twice", h.stored(t, 24).Notes)

	other := sampleRep(24)
	other.State = "parked"
	_, err = h.ctrl.UpdateLocal(context.Background(), job, other)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	next := sampleRep(24)
	next.State = core.StateScheduled
	job, err = h.ctrl.UpdateLocal(context.Background(), job, next)
	require.NoError(t, err)
	assert.Equal(t, core.StateScheduled, job.State)
	assert.Equal(t, core.StateScheduled, h.stored(t, 24).State)
}

func TestUpdateLocal_UnstoredJobIsCreated(t *testing.T) {
	h := newHarness(t)
	job := core.NewJob(sampleRep(23))

	rep := sampleRep(23)
	rep.State = core.StateScheduled
	_, err := h.ctrl.UpdateLocal(context.Background(), job, rep)
	require.NoError(t, err)

	stored := h.stored(t, 23)
	require.NotNil(t, stored)
	assert.Equal(t, core.StateScheduled, stored.State)
}

// ──────────────────────────────────────────────────────────────────────────────
// AssignWasher
// ──────────────────────────────────────────────────────────────────────────────

func TestAssignWasher_AttachesResolvedWasher(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(30)
	job, err := h.ctrl.Create(context.Background(), sampleRep(30))
	require.NoError(t, err)

	assigned := sampleRep(30)
	assigned.State = core.StateAssigned
	h.remote.assigned = assigned

	got, err := h.ctrl.AssignWasher(context.Background(), job, 2)
	require.NoError(t, err)
	require.NotNil(t, got.Washer)
	assert.Equal(t, 2, got.Washer.WasherID)

	stored := h.stored(t, 30)
	require.NotNil(t, stored.WasherID)
	assert.Equal(t, 2, *stored.WasherID)
	assert.Equal(t, core.StateAssigned, stored.State)

	ev := h.waitEvent(t, core.EventJobAssigned)
	require.NotNil(t, ev.Job)
	require.NotNil(t, ev.Job.WasherID)
	assert.Equal(t, 2, *ev.Job.WasherID)
}

func TestAssignWasher_UnresolvedWasherLeftAsReconciled(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(31)
	job, err := h.ctrl.Create(context.Background(), sampleRep(31))
	require.NoError(t, err)

	assigned := sampleRep(31)
	assigned.WasherID = intPtr(77)
	h.remote.assigned = assigned

	got, err := h.ctrl.AssignWasher(context.Background(), job, 77)
	require.NoError(t, err)
	assert.Nil(t, got.Washer)
	assert.Nil(t, h.stored(t, 31).WasherID)
}

func TestAssignWasher_RemoteFailure(t *testing.T) {
	h := newHarness(t)
	h.remote.err = &core.NetworkError{Op: "assign washer", Err: errors.New("connection refused")}

	got, err := h.ctrl.AssignWasher(context.Background(), core.NewJob(sampleRep(32)), 2)
	assert.Nil(t, got)
	var ne *core.NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.Nil(t, h.stored(t, 32))
}

// ──────────────────────────────────────────────────────────────────────────────
// Delete
// ──────────────────────────────────────────────────────────────────────────────

func TestDelete_RemovesAfterConfirmation(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(40)
	job, err := h.ctrl.Create(context.Background(), sampleRep(40))
	require.NoError(t, err)

	h.remote.deleted = "Job 40 deleted"
	msg, err := h.ctrl.Delete(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "Job 40 deleted", msg)
	assert.Nil(t, h.stored(t, 40))

	ev := h.waitEvent(t, core.EventJobDeleted)
	assert.Equal(t, "Job 40 deleted", ev.Message)
}

func TestDelete_RemoteFailureKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(41)
	job, err := h.ctrl.Create(context.Background(), sampleRep(41))
	require.NoError(t, err)

	h.remote.err = &core.RemoteRejectedError{Op: "delete", StatusCode: http.StatusNotFound}
	msg, err := h.ctrl.Delete(context.Background(), job)
	assert.Empty(t, msg)
	assert.Equal(t, http.StatusNotFound, core.StatusCode(err))

	stored := h.stored(t, 41)
	require.NotNil(t, stored)
	assert.Equal(t, "9 Oak Ave", stored.Address)
}

func TestDelete_CommitFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.remote.created = sampleRep(42)
	job, err := h.ctrl.Create(context.Background(), sampleRep(42))
	require.NoError(t, err)

	h.remote.deleted = "gone"
	h.store.failCommits.Store(1)
	msg, err := h.ctrl.Delete(context.Background(), job)
	assert.Empty(t, msg)
	assert.ErrorIs(t, err, errDiskFull)
	assert.NotNil(t, h.stored(t, 42))
}

// ──────────────────────────────────────────────────────────────────────────────
// Fetch / Sync
// ──────────────────────────────────────────────────────────────────────────────

func TestFetch_DoesNotTouchStore(t *testing.T) {
	h := newHarness(t)
	h.remote.fetched = core.NewJob(sampleRep(50))
	h.remote.userJobs = []core.Representation{sampleRep(51)}

	job, err := h.ctrl.FetchOne(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, job.JobID)

	reps, err := h.ctrl.FetchForUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, reps, 1)

	reps, err = h.ctrl.FetchForWasher(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, reps, 1)

	all, err := h.db.ListJobs(context.Background(), core.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSyncUser_ReconcilesEveryJob(t *testing.T) {
	h := newHarness(t)
	h.remote.userJobs = []core.Representation{sampleRep(60), sampleRep(61), sampleRep(62)}

	jobs, err := h.ctrl.SyncUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	stored, err := h.db.ListJobs(context.Background(), core.JobFilter{ClientID: intPtr(1)})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	ev := h.waitEvent(t, core.EventJobSynced)
	assert.Equal(t, "sync user", ev.Op)
}

func TestSyncWasher_CommitFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.remote.userJobs = []core.Representation{sampleRep(63), sampleRep(64)}
	h.store.failCommits.Store(1)

	jobs, err := h.ctrl.SyncWasher(context.Background(), 2)
	assert.Nil(t, jobs)
	assert.ErrorIs(t, err, errDiskFull)

	all, err := h.db.ListJobs(context.Background(), core.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// ──────────────────────────────────────────────────────────────────────────────
// Write-back
// ──────────────────────────────────────────────────────────────────────────────

func fastReplay(attempts int) Option {
	return WithWriterOptions(worker.WithReplayRetry(worker.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}))
}

func TestWriteBack_CommitsAfterReturning(t *testing.T) {
	h := newHarness(t, WithCommitMode(WriteBack))
	h.remote.created = sampleRep(70)

	job, err := h.ctrl.Create(context.Background(), sampleRep(70))
	require.NoError(t, err)
	assert.Equal(t, 70, job.JobID)

	h.waitEvent(t, core.EventJobCreated)
	assert.NotNil(t, h.stored(t, 70))
}

func TestWriteBack_FailedCommitIsReplayed(t *testing.T) {
	h := newHarness(t, WithCommitMode(WriteBack), fastReplay(5))
	h.remote.created = sampleRep(71)
	h.store.failCommits.Store(2)

	job, err := h.ctrl.Create(context.Background(), sampleRep(71))
	require.NoError(t, err, "write-back returns before the commit outcome is known")
	require.NotNil(t, job)

	failed := h.waitEvent(t, core.EventCommitFailed)
	assert.Equal(t, 71, failed.JobID)
	assert.Contains(t, failed.Error, "disk full")

	replayed := h.waitEvent(t, core.EventJobCreated)
	assert.Equal(t, "create replay", replayed.Op)
	assert.NotNil(t, h.stored(t, 71))
}

func TestWriteBack_ReplayExhausted(t *testing.T) {
	h := newHarness(t, WithCommitMode(WriteBack), fastReplay(2))
	h.remote.created = sampleRep(72)
	h.store.failCommits.Store(100)

	_, err := h.ctrl.Create(context.Background(), sampleRep(72))
	require.NoError(t, err)

	ev := h.waitEvent(t, core.EventReplayExhausted)
	assert.Equal(t, 72, ev.JobID)
	assert.Nil(t, h.stored(t, 72))
}

func TestWriteBack_CancelledBeforeUnitStartsLeavesStoreUntouched(t *testing.T) {
	w := worker.NewWriter()
	t.Cleanup(w.Close)

	h := newHarness(t, WithCommitMode(WriteBack), WithWriter(w))
	h.remote.created = sampleRep(75)

	release := make(chan struct{})
	require.NoError(t, w.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job, err := h.ctrl.Create(ctx, sampleRep(75))
	assert.Nil(t, job)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	w.Close()
	assert.Nil(t, h.stored(t, 75), "an abandoned unit must not stage or commit")
}

func TestWriteBack_StagingErrorIsReturned(t *testing.T) {
	h := newHarness(t, WithCommitMode(WriteBack))
	h.remote.revised = []core.Representation{}

	_, err := h.ctrl.Update(context.Background(), sampleRep(73))
	assert.ErrorIs(t, err, core.ErrNoRevision)
}

func TestWriteBack_UpdateLocalStillWaitsForCommit(t *testing.T) {
	h := newHarness(t, WithCommitMode(WriteBack))
	job := core.NewJob(sampleRep(74))
	h.store.failCommits.Store(1)

	_, err := h.ctrl.UpdateLocal(context.Background(), job, sampleRep(74))
	assert.ErrorIs(t, err, errDiskFull)
}

// ──────────────────────────────────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────────────────────────────────

func TestParseCommitMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CommitMode
		wantErr bool
	}{
		{"", WriteThrough, false},
		{"write-through", WriteThrough, false},
		{"Write-Back", WriteBack, false},
		{"async", WriteBack, false},
		{"eventually", WriteThrough, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommitMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "write-back", WriteBack.String())
}

func TestWithWriter_SharedWriterIsNotClosed(t *testing.T) {
	w := worker.NewWriter()
	defer w.Close()

	h := newHarness(t, WithWriter(w))
	h.ctrl.Close()

	assert.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }))
}
