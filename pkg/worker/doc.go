// Package worker provides the single store writer used by lifecycle operations.
//
// This package includes:
//   - Writer: runs store mutations one at a time on a dedicated goroutine
//   - Replay: retries failed write-back commits with exponential backoff
//   - WriterOption: queue size, replay policy and logger configuration
//
// Most users should import the root package github.com/expresswash/jobsync
// which creates a Writer for each Controller.
package worker
