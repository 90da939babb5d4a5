package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/events"
	"github.com/expresswash/jobsync/pkg/reconcile"
	"github.com/expresswash/jobsync/pkg/storage"
)

func intPtr(v int) *int { return &v }

// fakeRemote answers from canned values and counts calls.
type fakeRemote struct {
	mu    sync.Mutex
	calls map[string]int

	created  core.Representation
	fetched  *core.Job
	userJobs []core.Representation
	assigned core.Representation
	revised  []core.Representation
	deleted  string
	err      error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: map[string]int{}}
}

func (f *fakeRemote) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) CreateRepresentation(_ context.Context, rep core.Representation) (core.Representation, error) {
	if err := f.record("create"); err != nil {
		return core.Representation{}, err
	}
	return f.created, nil
}

func (f *fakeRemote) FetchOne(_ context.Context, jobID int) (*core.Job, error) {
	if err := f.record("fetch"); err != nil {
		return nil, err
	}
	return f.fetched, nil
}

func (f *fakeRemote) FetchForUser(_ context.Context, userID int) ([]core.Representation, error) {
	if err := f.record("fetch user"); err != nil {
		return nil, err
	}
	return f.userJobs, nil
}

func (f *fakeRemote) FetchForWasher(_ context.Context, washerID int) ([]core.Representation, error) {
	if err := f.record("fetch washer"); err != nil {
		return nil, err
	}
	return f.userJobs, nil
}

func (f *fakeRemote) AssignWasher(_ context.Context, jobID, washerID int) (core.Representation, error) {
	if err := f.record("assign"); err != nil {
		return core.Representation{}, err
	}
	return f.assigned, nil
}

func (f *fakeRemote) Revise(_ context.Context, rep core.Representation) ([]core.Representation, error) {
	if err := f.record("revise"); err != nil {
		return nil, err
	}
	return f.revised, nil
}

func (f *fakeRemote) Delete(_ context.Context, jobID int) (string, error) {
	if err := f.record("delete"); err != nil {
		return "", err
	}
	return f.deleted, nil
}

// flakyStore fails the next N commits after staging succeeded.
type flakyStore struct {
	core.Store
	failCommits atomic.Int32
}

func (s *flakyStore) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{Tx: tx, store: s}, nil
}

type flakyTx struct {
	core.Tx
	store *flakyStore
}

func (t *flakyTx) Commit() error {
	if t.store.failCommits.Add(-1) >= 0 {
		_ = t.Tx.Rollback()
		return &core.PersistenceError{Op: "commit", Err: errDiskFull}
	}
	t.store.failCommits.Store(0)
	return t.Tx.Commit()
}

var errDiskFull = errors.New("disk full")

type harness struct {
	remote *fakeRemote
	store  *flakyStore
	db     *storage.GormStorage
	dir    *storage.Directory
	bus    *events.Bus
	events <-chan core.Event
	ctrl   *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	dir := storage.NewDirectory(db.DB())
	ctx := context.Background()
	require.NoError(t, dir.SaveUser(ctx, &core.User{UserID: 1, FirstName: "Ada"}))
	require.NoError(t, dir.SaveWasher(ctx, &core.Washer{WasherID: 2, UserID: 20}))
	require.NoError(t, dir.SaveCar(ctx, &core.Car{CarID: 3, ClientID: 1}))

	bus := events.NewBus()
	subCtx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(subCtx)
	require.NoError(t, err)

	h := &harness{
		remote: newFakeRemote(),
		store:  &flakyStore{Store: db},
		db:     db,
		dir:    dir,
		bus:    bus,
		events: ch,
	}
	opts = append([]Option{WithEventBus(bus)}, opts...)
	h.ctrl = NewController(h.remote, h.store, reconcile.New(dir.Relations()), opts...)

	t.Cleanup(func() {
		h.ctrl.Close()
		cancel()
		_ = bus.Close()
		if sqlDB, err := db.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return h
}

func (h *harness) stored(t *testing.T, jobID int) *core.Job {
	t.Helper()
	job, err := h.db.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

// waitEvent returns the next event of type typ, skipping others.
func (h *harness) waitEvent(t *testing.T, typ core.EventType) core.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return core.Event{}
		}
	}
}

func sampleRep(id int) core.Representation {
	requested := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return core.Representation{
		JobID:         id,
		State:         core.StateRequested,
		Address:       "9 Oak Ave",
		City:          "Austin",
		Zip:           "73301",
		JobType:       "interior",
		TimeRequested: &requested,
		ClientID:      1,
		CarID:         3,
	}
}
