// Package context provides context helpers for the jobsync package.
package context

import (
	"context"

	"gorm.io/gorm"
)

// TxKey is the key for storing the active transaction in context.Context.
type TxKey struct{}

// WithTx binds an open transaction to a context.Context.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TxKey{}, tx)
}

// TxFrom returns the transaction bound to ctx, or nil.
func TxFrom(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxKey{}).(*gorm.DB); ok {
		return tx
	}
	return nil
}

// DB returns the transaction bound to ctx when present and fallback otherwise,
// scoped to ctx.
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx := TxFrom(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// OpKey is the key for storing the lifecycle operation name in context.Context.
type OpKey struct{}

// WithOp records the lifecycle operation name on ctx.
func WithOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OpKey{}, op)
}

// OpFrom returns the operation name recorded on ctx, or an empty string.
func OpFrom(ctx context.Context) string {
	if op, ok := ctx.Value(OpKey{}).(string); ok {
		return op
	}
	return ""
}
