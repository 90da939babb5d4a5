package worker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/expresswash/jobsync/pkg/core"
)

// RetryConfig is the backoff policy for replaying failed write-back commits.
type RetryConfig struct {
	// MaxAttempts counts the first try. Default: 5
	MaxAttempts int

	// InitialBackoff is the wait after the first failure. Default: 200ms
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts. Default: 10s
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each failure. Default: 2.0
	BackoffMultiplier float64

	// JitterFraction randomizes each wait by up to this fraction either way. Default: 0.2
	JitterFraction float64
}

// DefaultRetryConfig returns the default replay policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

// jittered spreads d by up to JitterFraction in either direction.
func (c RetryConfig) jittered(d time.Duration) time.Duration {
	if c.JitterFraction <= 0 {
		return d
	}
	offset := time.Duration(float64(d) * c.JitterFraction * (rand.Float64()*2 - 1))
	if d+offset < 0 {
		return d
	}
	return d + offset
}

// replay runs op until it succeeds, returns a non-retryable error, or runs
// out of attempts. onFailure sees every failed attempt that will be retried.
func replay(ctx context.Context, cfg RetryConfig, op func() error, onFailure func(attempt int, err error)) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !IsRetryableError(err) || attempt >= attempts {
			return err
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}

		timer := time.NewTimer(cfg.jittered(cfg.Backoff(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryableError reports whether a failed commit is worth replaying.
// Cancellation and a closed writer are final; any other store error
// (busy database, lock timeout, dropped connection) is tried again.
func IsRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrWriterClosed):
		return false
	}
	return true
}
