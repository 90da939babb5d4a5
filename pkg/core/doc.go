// Package core provides the fundamental types and interfaces for the jobsync package.
//
// This package contains:
//   - Job, Representation and the related User, Washer and Car models with GORM annotations
//   - JobState and its transition rules
//   - Store and Tx interfaces defining the persistence contract
//   - Lookup and credential collaborator interfaces
//   - Event types for lifecycle observers
//   - Error types for remote and persistence failures
//
// Most users should import the root package github.com/expresswash/jobsync
// instead of this package directly.
package core
