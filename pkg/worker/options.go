package worker

import (
	"log/slog"

	"github.com/expresswash/jobsync/pkg/security"
)

// WriterOption configures a Writer.
type WriterOption interface {
	ApplyWriter(*WriterConfig)
}

type writerOptionFunc func(*WriterConfig)

func (f writerOptionFunc) ApplyWriter(c *WriterConfig) { f(c) }

// WriterConfig holds writer configuration.
type WriterConfig struct {
	// QueueSize is the number of tasks that may wait for the writer.
	// Default: 256
	QueueSize int

	// Replay controls how failed write-back commits are retried.
	Replay RetryConfig

	Logger *slog.Logger
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize: 256,
		Replay:    DefaultRetryConfig(),
		Logger:    slog.Default(),
	}
}

// WithQueueSize sets the task buffer size. Values below 1 are ignored.
func WithQueueSize(n int) WriterOption {
	return writerOptionFunc(func(c *WriterConfig) {
		if n > 0 {
			c.QueueSize = n
		}
	})
}

// WithReplayRetry sets the replay backoff policy.
// MaxAttempts is clamped to [1, security.MaxReplayAttempts].
func WithReplayRetry(cfg RetryConfig) WriterOption {
	return writerOptionFunc(func(c *WriterConfig) {
		cfg.MaxAttempts = security.ClampReplayAttempts(cfg.MaxAttempts)
		c.Replay = cfg
	})
}

// WithReplayAttempts sets only the replay attempt count, keeping default backoff.
func WithReplayAttempts(n int) WriterOption {
	return writerOptionFunc(func(c *WriterConfig) {
		c.Replay.MaxAttempts = security.ClampReplayAttempts(n)
	})
}

// DisableReplay makes a failed write-back commit final after the first attempt.
func DisableReplay() WriterOption {
	return writerOptionFunc(func(c *WriterConfig) {
		c.Replay.MaxAttempts = 1
	})
}

// WithLogger sets the writer's logger.
func WithLogger(l *slog.Logger) WriterOption {
	return writerOptionFunc(func(c *WriterConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}
