package remote

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithHTTPClient replaces the HTTP client. It must be safe for concurrent use.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	})
}

// WithTimeout sets the per-request timeout on the current HTTP client.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		if d <= 0 {
			return
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	})
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Client) {
		if l != nil {
			c.logger = l
		}
	})
}
