// Package memory implements an in-process types.Store. Records live in maps
// guarded by mutexes and are lost when the process exits. It backs tests
// and `obay serve --backend memory`.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/obay/internal/feed"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// Store is an in-memory types.Store.
type Store struct {
	logger *slog.Logger

	mu       sync.RWMutex
	attached bool
	broker   *feed.Broker
	tables   map[string]*Table
}

var _ types.Store = (*Store)(nil)

// NewStore creates a detached store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger, tables: make(map[string]*Table)}
}

// Attach starts the store. DataDir and PostgresDSN are ignored.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}
	s.broker = feed.NewBroker(
		feed.WithBacklog(config.GetFeedBacklog()),
		feed.WithLogger(s.logger.With("backend", types.BackendMemory)),
	)
	s.tables = make(map[string]*Table)
	s.attached = true
	return nil
}

// Detach drops every table and closes open subscriptions. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil
	}
	s.broker.Close()
	s.tables = make(map[string]*Table)
	s.attached = false
	return nil
}

// EnsureTable creates the table if it does not exist.
func (s *Store) EnsureTable(_ context.Context, name string) error {
	if name == "" {
		return types.ErrInvalidTable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return types.ErrStoreDetached
	}
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = newTable(s, name)
	}
	return nil
}

// WaitReady returns at once for an attached store.
func (s *Store) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return types.ErrStoreDetached
	}
	return nil
}

// GetTable returns a provisioned table.
func (s *Store) GetTable(name string) (types.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return nil, types.ErrStoreDetached
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return t, nil
}

// check returns ErrStoreDetached once the store has been detached.
func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return types.ErrStoreDetached
	}
	return nil
}
