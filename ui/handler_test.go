package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/events"
	"github.com/expresswash/jobsync/pkg/storage"
)

func newTestStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	store, err := storage.Open("")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() {
		if sqlDB, err := store.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store
}

func seed(t *testing.T, store *storage.GormStorage, reps ...core.Representation) {
	t.Helper()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	for _, rep := range reps {
		require.NoError(t, tx.Create(core.NewJob(rep)))
	}
	require.NoError(t, tx.Commit())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
	return rw
}

func TestHandler_Index(t *testing.T) {
	h := Handler(newTestStore(t))

	rw := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), "api/jobs")
}

func TestHandler_ListJobs(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		core.Representation{JobID: 1, State: core.StateRequested, Address: "1 Main St"},
		core.Representation{JobID: 2, State: core.StateAssigned, Address: "2 Main St"},
		core.Representation{JobID: 3, State: core.StateRequested, Address: "3 Main St"},
	)
	h := Handler(store)

	rw := get(t, h, "/api/jobs")
	require.Equal(t, http.StatusOK, rw.Code)
	var all []core.Representation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &all))
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].JobID)

	rw = get(t, h, "/api/jobs?state=requested&limit=1")
	require.Equal(t, http.StatusOK, rw.Code)
	var filtered []core.Representation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, core.StateRequested, filtered[0].State)
}

func TestHandler_ListJobs_RemoteStateLabel(t *testing.T) {
	store := newTestStore(t)
	seed(t, store,
		core.Representation{JobID: 1, State: "pending"},
		core.Representation{JobID: 2, State: core.StateRequested},
	)
	h := Handler(store)

	rw := get(t, h, "/api/jobs?state=pending")
	require.Equal(t, http.StatusOK, rw.Code)
	var reps []core.Representation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &reps))
	require.Len(t, reps, 1)
	assert.Equal(t, 1, reps[0].JobID)

	rw = get(t, h, "/api/jobs?state=parked")
	require.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, "[]", rw.Body.String())
}

func TestHandler_ListJobs_BadFilter(t *testing.T) {
	h := Handler(newTestStore(t))

	for _, q := range []string{"client=abc", "washer=x", "state=" + strings.Repeat("x", 33), "limit=-3"} {
		rw := get(t, h, "/api/jobs?"+q)
		assert.Equal(t, http.StatusBadRequest, rw.Code, q)
	}
}

func TestHandler_GetJob(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, core.Representation{JobID: 9, State: core.StateScheduled, City: "Austin"})
	h := Handler(store)

	rw := get(t, h, "/api/jobs/9")
	require.Equal(t, http.StatusOK, rw.Code)
	var rep core.Representation
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &rep))
	assert.Equal(t, 9, rep.JobID)
	assert.Equal(t, "Austin", rep.City)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/jobs/10").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/jobs/nope").Code)
}

func TestHandler_EventsWithoutBus(t *testing.T) {
	h := Handler(newTestStore(t))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/events").Code)
}

func TestHandler_WithMiddleware(t *testing.T) {
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Wrapped", "yes")
			next.ServeHTTP(w, r)
		})
	}
	h := Handler(newTestStore(t), WithMiddleware(mw))

	rw := get(t, h, "/")
	assert.Equal(t, "yes", rw.Header().Get("X-Wrapped"))
}

func TestHandler_StreamsEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	srv := httptest.NewServer(Handler(newTestStore(t), WithEventBus(bus)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?job=5", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": subscribed\n", line)

	require.NoError(t, bus.Publish(ctx, core.Event{Type: core.EventJobCreated, JobID: 4, Op: "create"}))
	require.NoError(t, bus.Publish(ctx, core.Event{Type: core.EventJobUpdated, JobID: 5, Op: "update"}))

	var eventLine, dataLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			eventLine = strings.TrimSpace(line)
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}

	assert.Equal(t, "event: job.updated", eventLine)
	var ev core.Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &ev))
	assert.Equal(t, 5, ev.JobID)
	assert.Equal(t, "update", ev.Op)
}
