package core

import (
	"errors"
	"fmt"
)

// Validation and workflow errors
var (
	ErrEmptyResponse     = errors.New("jobsync: empty response body")
	ErrNoRevision        = errors.New("jobsync: revise returned no representations")
	ErrInvalidJobID      = errors.New("jobsync: invalid job id")
	ErrInvalidWasherID   = errors.New("jobsync: invalid washer id")
	ErrJobMismatch       = errors.New("jobsync: representation does not match job")
	ErrInvalidState      = errors.New("jobsync: unknown job state")
	ErrIllegalTransition = errors.New("jobsync: illegal job state transition")
	ErrResponseTooLarge  = errors.New("jobsync: response body exceeds size limit")
	ErrInvalidBaseURL    = errors.New("jobsync: invalid base url")
	ErrWriterClosed      = errors.New("jobsync: store writer closed")
)

// NetworkError indicates the request never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("jobsync: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteRejectedError indicates a response status outside the operation's accepted set.
type RemoteRejectedError struct {
	Op         string
	StatusCode int
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("jobsync: %s: remote rejected request with status %d", e.Op, e.StatusCode)
}

// EmptyResponseError indicates an accepted status with no body.
// It matches ErrEmptyResponse with errors.Is.
type EmptyResponseError struct {
	Op string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("jobsync: %s: empty response body", e.Op)
}

func (e *EmptyResponseError) Is(target error) bool {
	return target == ErrEmptyResponse
}

// DecodeError indicates a payload that could not be encoded or parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("jobsync: %s: decode: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates a local store failure while staging or committing.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("jobsync: %s: persistence: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StatusCode returns the rejected status code carried by err, or 0.
func StatusCode(err error) int {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode
	}
	return 0
}
