// Package postgres implements the Postgres storage backend for obay. Each
// table holds one JSONB document per row; equality filters use JSONB
// containment and ordering uses the document's property values.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesh-intelligence/obay/internal/feed"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// db is the subset of *pgxpool.Pool the tables use.
type db interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var _ db = (*pgxpool.Pool)(nil)

// Store implements types.Store on a pgx connection pool.
type Store struct {
	logger *slog.Logger

	mu       sync.RWMutex
	attached bool
	config   types.Config
	pool     *pgxpool.Pool
	db       db
	broker   *feed.Broker
	tables   map[string]*table
}

var _ types.Store = (*Store)(nil)

// NewStore creates a detached Postgres store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger, tables: make(map[string]*table)}
}

// Attach creates the connection pool. The pool connects lazily; call
// WaitReady to block until the server answers.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.PostgresDSN == "" {
		return types.ErrPostgresDSNEmpty
	}

	poolConfig, err := pgxpool.ParseConfig(config.PostgresDSN)
	if err != nil {
		return fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return fmt.Errorf("creating postgres pool: %w", err)
	}

	s.pool = pool
	s.db = pool
	s.config = config
	s.broker = feed.NewBroker(
		feed.WithBacklog(config.GetFeedBacklog()),
		feed.WithLogger(s.logger.With("backend", types.BackendPostgres)),
	)
	s.tables = make(map[string]*table)
	s.attached = true
	return nil
}

// Detach closes subscriptions and the pool. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return nil
	}
	s.broker.Close()
	s.pool.Close()
	s.pool = nil
	s.db = nil
	s.tables = make(map[string]*table)
	s.attached = false
	return nil
}

// EnsureTable creates the named table and its containment index if absent.
func (s *Store) EnsureTable(ctx context.Context, name string) error {
	if !validTableName(name) {
		return types.ErrInvalidTable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	if _, ok := s.tables[name]; ok {
		return nil
	}
	for _, stmt := range createTableSQL(name) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %s: %w", name, err)
		}
	}
	s.tables[name] = newTable(s, name)
	s.logger.Info("table ready", "backend", types.BackendPostgres, "table", name)
	return nil
}

// WaitReady pings the server until it answers, ctx is done, or the
// configured ready timeout elapses.
func (s *Store) WaitReady(ctx context.Context) error {
	s.mu.RLock()
	conn, attached, timeout := s.db, s.attached, s.config.GetReadyTimeout()
	s.mu.RUnlock()
	if !attached {
		return types.ErrStoreDetached
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := conn.Ping(ctx)
		if err == nil {
			return nil
		}
		s.logger.Debug("waiting for postgres", "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for postgres: %w", errors.Join(err, ctx.Err()))
		case <-ticker.C:
		}
	}
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

func (s *Store) conn() (db, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return nil, types.ErrStoreDetached
	}
	return s.db, nil
}
