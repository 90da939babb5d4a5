package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expresswash/jobsync/pkg/core"
)

// Task is a unit of store work run on the writer goroutine.
type Task func(ctx context.Context) error

type task struct {
	ctx  context.Context
	fn   Task
	done chan error
}

// Writer serializes every store mutation onto a single goroutine.
// Commits happen in submission order, so two tasks never hold a write
// transaction at the same time.
type Writer struct {
	config WriterConfig
	logger *slog.Logger

	tasks    chan task
	loopDone chan struct{}

	// ctx is cancelled by Close and bounds replay goroutines.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	replayMu     sync.Mutex
	replayClosed bool
	replays      sync.WaitGroup
}

// NewWriter creates and starts a writer.
func NewWriter(opts ...WriterOption) *Writer {
	config := DefaultWriterConfig()
	for _, opt := range opts {
		opt.ApplyWriter(&config)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		config:   config,
		logger:   config.Logger,
		tasks:    make(chan task, config.QueueSize),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go w.loop()
	return w
}

// Config returns the writer's effective configuration.
func (w *Writer) Config() WriterConfig {
	return w.config
}

// Do runs fn on the writer goroutine and waits for its result.
// If ctx ends first Do returns ctx.Err(); a task that has not started by
// then is skipped.
func (w *Writer) Do(ctx context.Context, fn Task) error {
	done := make(chan error, 1)
	if err := w.submit(ctx, task{ctx: ctx, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go queues fn without waiting for it. Errors from fn are the task's own
// responsibility; the writer only logs panics.
func (w *Writer) Go(ctx context.Context, fn Task) error {
	return w.submit(ctx, task{ctx: ctx, fn: fn})
}

// Replay retries fn on the writer with the configured backoff until it
// succeeds. onExhausted receives the last error when every attempt fails
// or the writer closes first.
func (w *Writer) Replay(fn Task, onExhausted func(error)) error {
	w.replayMu.Lock()
	if w.replayClosed {
		w.replayMu.Unlock()
		return core.ErrWriterClosed
	}
	w.replays.Add(1)
	w.replayMu.Unlock()

	go func() {
		defer w.replays.Done()
		err := replay(w.ctx, w.config.Replay, func() error {
			return w.Do(w.ctx, fn)
		}, func(attempt int, err error) {
			w.logger.Warn("replay attempt failed", "attempt", attempt, "error", err)
		})
		if err != nil && onExhausted != nil {
			onExhausted(err)
		}
	}()
	return nil
}

// Close stops accepting tasks, runs everything already queued, and cancels
// pending replays. It is safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.loopDone
		return
	}
	w.closed = true
	w.cancel()
	close(w.tasks)
	w.mu.Unlock()

	<-w.loopDone

	w.replayMu.Lock()
	w.replayClosed = true
	w.replayMu.Unlock()
	w.replays.Wait()
}

func (w *Writer) submit(ctx context.Context, t task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return core.ErrWriterClosed
	}
	select {
	case w.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer close(w.loopDone)
	for t := range w.tasks {
		err := w.run(t)
		if t.done != nil {
			t.done <- err
		}
	}
}

func (w *Writer) run(t task) (err error) {
	if ctxErr := t.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("store task panicked", "panic", r)
			err = fmt.Errorf("jobsync: store task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}
