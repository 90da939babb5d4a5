package ui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/events"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxStateLength   = 32
)

// Handler creates an http.Handler that serves committed jobs from store.
//
// Routes:
//
//	GET /                 index page
//	GET /api/jobs         list, filtered by client, washer, state and limit
//	GET /api/jobs/{id}    one job
//	GET /api/events       server-sent lifecycle events (requires WithEventBus)
//
// Usage:
//
//	mux.Handle("/jobs/", http.StripPrefix("/jobs", ui.Handler(store)))
func Handler(store core.Store, opts ...Option) http.Handler {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	s := &server{store: store, bus: cfg.bus, logger: cfg.logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.index)
	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{id}", s.getJob)
		r.Get("/events", s.watchEvents)
	})

	if cfg.middleware != nil {
		return cfg.middleware(r)
	}
	return r
}

type server struct {
	store  core.Store
	bus    *events.Bus
	logger *slog.Logger
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	reps := make([]core.Representation, len(jobs))
	for i, j := range jobs {
		reps[i] = j.Representation()
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.logger.Error("get job failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Representation())
}

// watchEvents streams bus events until the client disconnects.
// An optional ?job=<id> narrows the stream to one job.
func (s *server) watchEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, "event stream not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var jobFilter int
	if raw := r.URL.Query().Get("job"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}
		jobFilter = id
	}

	ctx := r.Context()
	stream, err := s.bus.Subscribe(ctx)
	if err != nil {
		s.logger.Error("subscribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if jobFilter != 0 && ev.JobID != jobFilter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseFilter(r *http.Request) (core.JobFilter, error) {
	q := r.URL.Query()
	filter := core.JobFilter{Limit: defaultListLimit}

	if raw := q.Get("client"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid client id %q", raw)
		}
		filter.ClientID = &id
	}
	if raw := q.Get("washer"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid washer id %q", raw)
		}
		filter.WasherID = &id
	}
	if raw := q.Get("state"); raw != "" {
		// Stored states may carry labels set by the remote service, so any
		// label that fits the column is a valid filter.
		if len(raw) > maxStateLength {
			return filter, fmt.Errorf("invalid state %q", raw)
		}
		filter.State = core.JobState(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = min(n, maxListLimit)
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>jobsync</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 40px; color: #333; }
        code { background: #f0f0f0; padding: 2px 6px; border-radius: 4px; }
        li { margin-bottom: 8px; }
    </style>
</head>
<body>
    <h1>jobsync</h1>
    <ul>
        <li><a href="api/jobs"><code>GET api/jobs</code></a> committed jobs (<code>?client=</code>, <code>?washer=</code>, <code>?state=</code>, <code>?limit=</code>)</li>
        <li><code>GET api/jobs/{id}</code> one job</li>
        <li><code>GET api/events</code> live lifecycle events</li>
    </ul>
</body>
</html>`
