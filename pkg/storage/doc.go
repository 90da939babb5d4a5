// Package storage provides the GORM-backed local job store.
//
// This package includes:
//   - GormStorage: core.Store over SQLite or PostgreSQL with scoped transactions
//   - Directory: user, washer and car lookups that read through an open transaction
//   - Open: DSN-based construction with connection pool defaults
//
// Most users should import the root package github.com/expresswash/jobsync
// which provides OpenStore() to create storage instances.
package storage
