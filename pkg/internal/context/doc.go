// Package context provides internal context helpers for store operations.
//
// This package is internal and should not be imported directly.
// It provides context value types for:
//   - Transaction scope: the open GORM transaction that lookups must read through
//   - Operation name: the lifecycle operation a log line belongs to
package context
