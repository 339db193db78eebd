package types

import (
	"context"
	"errors"
)

// Store defines backend-agnostic access to the record tables.
// Callers attach to a backend, provision and access tables by name, and
// detach when done. The process that attaches owns the backend's connection
// pool; gateways only borrow tables.
type Store interface {
	// Attach connects the Store to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources and closes every open subscription.
	// Idempotent: multiple calls succeed.
	Detach() error

	// EnsureTable creates the named table if it does not exist. Idempotent.
	EnsureTable(ctx context.Context, name string) error

	// WaitReady blocks until the backend answers or ctx is done.
	WaitReady(ctx context.Context) error

	// GetTable returns the Table for the given name.
	// Returns ErrTableNotFound if the table has not been provisioned.
	GetTable(name string) (Table, error)
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
	ErrInvalidTable    = errors.New("invalid table name")
)

// Provision ensures every standard table exists once the store answers.
func Provision(ctx context.Context, s Store, tables ...string) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	if len(tables) == 0 {
		tables = StandardTableNames
	}
	for _, name := range tables {
		if err := s.EnsureTable(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
