// Package security provides validation, sanitization, and limits for the jobsync package.
package security

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/expresswash/jobsync/pkg/core"
)

// Security limits and configuration
const (
	// MaxResponseBodySize is the maximum size in bytes read from a remote response (4MB)
	MaxResponseBodySize = 4 << 20

	// MaxLoggedBodyLength is the maximum length of a response snippet written to logs
	MaxLoggedBodyLength = 512

	// MaxErrorMessageLength is the maximum length for logged or published error messages
	MaxErrorMessageLength = 4096

	// MaxReplayAttempts is the hard limit for commit replay attempts
	MaxReplayAttempts = 20
)

// ValidateJobID validates a remote-assigned job id
func ValidateJobID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", core.ErrInvalidJobID, id)
	}
	return nil
}

// ValidateWasherID validates a washer id before it is sent to the remote service
func ValidateWasherID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", core.ErrInvalidWasherID, id)
	}
	return nil
}

// ValidateBaseURL checks that raw is an absolute http(s) URL and returns it parsed
func ValidateBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, core.ErrInvalidBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", core.ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", core.ErrInvalidBaseURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials in url", core.ErrInvalidBaseURL)
	}
	return u, nil
}

// SanitizeErrorMessage truncates and strips control characters from messages
// before they are logged or published
func SanitizeErrorMessage(msg string) string {
	return sanitize(msg, MaxErrorMessageLength)
}

// SanitizeBody renders a response body snippet that is safe to log
func SanitizeBody(body []byte) string {
	return sanitize(string(body), MaxLoggedBodyLength)
}

func sanitize(msg string, limit int) string {
	if msg == "" {
		return ""
	}

	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > limit {
		runes := []rune(result)
		result = string(runes[:limit-3]) + "..."
	}

	return result
}

// RedactToken keeps only a short prefix of a credential for diagnostics
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}

// ClampReplayAttempts ensures the replay attempt count is within limits
func ClampReplayAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxReplayAttempts {
		return MaxReplayAttempts
	}
	return n
}
