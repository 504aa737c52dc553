// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the Postgres and in-memory
// storage drivers provide the implementations.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error (or ctx is cancelled), everything fn wrote is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction that sees one snapshot.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
