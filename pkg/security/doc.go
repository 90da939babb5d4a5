// Package security provides validation, sanitization, and limits for the jobsync package.
//
// This package includes:
//   - Input validation for job ids, washer ids and the remote base URL
//   - Message sanitization and credential redaction for logs
//   - Clamping functions to enforce safe limits on commit replays
//   - Limits on the size of remote response bodies
//
// Most users should import the root package github.com/expresswash/jobsync
// which re-exports these functions.
package security
