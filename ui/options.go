// Package ui provides an embeddable read-only HTTP view of the local job store.
package ui

import (
	"log/slog"
	"net/http"

	"github.com/expresswash/jobsync/pkg/events"
)

// Option configures the UI handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	middleware func(http.Handler) http.Handler
	bus        *events.Bus
	logger     *slog.Logger
}

// WithMiddleware wraps the handler with middleware (auth, logging, etc.).
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = mw
	})
}

// WithEventBus enables the /api/events stream.
func WithEventBus(bus *events.Bus) Option {
	return optionFunc(func(c *config) {
		c.bus = bus
	})
}

// WithLogger sets the logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}
