// Package remote is the HTTP client for the remote job service.
//
// Every operation blocks until the service answers or ctx ends, and returns
// exactly one of a result or an error. Failures are reported with the error
// types in pkg/core: NetworkError when no response arrived,
// RemoteRejectedError for a status outside the operation's accepted set,
// ErrEmptyResponse for an accepted status without a body, and DecodeError for
// a body of the wrong shape.
//
// The client never touches the local store.
package remote
