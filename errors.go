package jobsync

import "github.com/expresswash/jobsync/pkg/core"

// Error variables
var (
	ErrEmptyResponse     = core.ErrEmptyResponse
	ErrNoRevision        = core.ErrNoRevision
	ErrInvalidJobID      = core.ErrInvalidJobID
	ErrInvalidWasherID   = core.ErrInvalidWasherID
	ErrJobMismatch       = core.ErrJobMismatch
	ErrInvalidState      = core.ErrInvalidState
	ErrIllegalTransition = core.ErrIllegalTransition
	ErrResponseTooLarge  = core.ErrResponseTooLarge
	ErrInvalidBaseURL    = core.ErrInvalidBaseURL
	ErrWriterClosed      = core.ErrWriterClosed
)

// StatusCode returns the HTTP status carried by a RemoteRejectedError in err, or 0.
func StatusCode(err error) int {
	return core.StatusCode(err)
}
