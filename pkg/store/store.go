// Package store provides the public factory for obay storage backends.
// It exposes backend construction while keeping implementations internal.
package store

import (
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/obay/internal/memory"
	"github.com/mesh-intelligence/obay/internal/postgres"
	"github.com/mesh-intelligence/obay/internal/sqlite"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// New creates a detached store for the backend named in config.
func New(config types.Config, logger *slog.Logger) (types.Store, error) {
	switch config.Backend {
	case types.BackendMemory:
		return memory.NewStore(logger), nil
	case types.BackendSQLite:
		return sqlite.NewBackend(logger), nil
	case types.BackendPostgres:
		return postgres.NewStore(logger), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}
}

// Open creates a store for config and attaches it.
//
// Example:
//
//	s, err := store.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".obay-db",
//	}, slog.Default())
//	defer s.Detach()
func Open(config types.Config, logger *slog.Logger) (types.Store, error) {
	s, err := New(config, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Attach(config); err != nil {
		return nil, fmt.Errorf("attaching %s store: %w", config.Backend, err)
	}
	return s, nil
}
