package lifecycle

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/expresswash/jobsync/pkg/events"
	"github.com/expresswash/jobsync/pkg/worker"
)

// CommitMode selects when a persisting operation returns relative to its commit.
type CommitMode int

const (
	// WriteThrough returns only after the reconciliation committed.
	WriteThrough CommitMode = iota

	// WriteBack returns the staged record before the commit finishes.
	// Failed commits are rolled back, reported as events and replayed.
	WriteBack
)

func (m CommitMode) String() string {
	switch m {
	case WriteThrough:
		return "write-through"
	case WriteBack:
		return "write-back"
	default:
		return fmt.Sprintf("CommitMode(%d)", int(m))
	}
}

// ParseCommitMode parses "write-through" or "write-back".
func ParseCommitMode(s string) (CommitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "write-through", "writethrough", "sync":
		return WriteThrough, nil
	case "write-back", "writeback", "async":
		return WriteBack, nil
	default:
		return WriteThrough, fmt.Errorf("jobsync: unknown commit mode %q", s)
	}
}

// Option configures a Controller.
type Option interface {
	apply(*Controller)
}

type optionFunc func(*Controller)

func (f optionFunc) apply(c *Controller) { f(c) }

// WithCommitMode sets the commit mode. Default: WriteThrough.
func WithCommitMode(m CommitMode) Option {
	return optionFunc(func(c *Controller) {
		c.mode = m
	})
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithEventBus publishes lifecycle events on bus.
func WithEventBus(bus *events.Bus) Option {
	return optionFunc(func(c *Controller) {
		c.bus = bus
	})
}

// WithWriter shares an existing store writer. The controller does not close it.
// Every controller over the same store must share one writer.
func WithWriter(w *worker.Writer) Option {
	return optionFunc(func(c *Controller) {
		if w != nil {
			c.writer = w
			c.ownsWriter = false
		}
	})
}

// WithWriterOptions configures the writer the controller creates for itself.
func WithWriterOptions(opts ...worker.WriterOption) Option {
	return optionFunc(func(c *Controller) {
		c.writerOpts = append(c.writerOpts, opts...)
	})
}
