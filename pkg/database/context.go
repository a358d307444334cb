package database

import (
	"context"
	"database/sql"
)

type contextKey string

const (
	// TxScopeKey is the context key for the transaction opened by WithTx.
	TxScopeKey contextKey = "txScope"
)

// TxScope is the write transaction owned by the outermost WithTx call.
// Repository calls made with a context carrying it join the transaction
// instead of taking the lock again.
type TxScope struct {
	Tx *sql.Tx
}

// GetTxScope retrieves the active transaction scope from context.
// Returns nil and false if not present.
func GetTxScope(ctx context.Context) (*TxScope, bool) {
	scope, ok := ctx.Value(TxScopeKey).(*TxScope)
	return scope, ok && scope != nil
}

// SetTxScope stores the transaction scope in context.
func SetTxScope(ctx context.Context, scope *TxScope) context.Context {
	return context.WithValue(ctx, TxScopeKey, scope)
}

// InTx reports whether ctx already carries a write transaction.
func InTx(ctx context.Context) bool {
	_, ok := GetTxScope(ctx)
	return ok
}
