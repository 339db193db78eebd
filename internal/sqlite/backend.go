// Package sqlite implements the SQLite storage backend for obay.
// Each table stores one JSON document per row; filters and ordering run
// through SQLite's JSON functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/obay/internal/feed"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// DBFile is the database file name inside DataDir.
const DBFile = "obay.db"

// Backend implements types.Store on a single SQLite database file.
type Backend struct {
	logger *slog.Logger

	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	broker   *feed.Broker
	tables   map[string]*table
}

var _ types.Store = (*Backend)(nil)

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger: logger,
		tables: make(map[string]*table),
	}
}

// Attach opens (or creates) DataDir/obay.db and registers the tables it
// already holds. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dsn := "file:" + filepath.Join(dataDir, DBFile) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer at a time; the feed gate already serializes mutations.
	db.SetMaxOpenConns(1)

	b.db = db
	b.config = config
	b.broker = feed.NewBroker(
		feed.WithBacklog(config.GetFeedBacklog()),
		feed.WithLogger(b.logger.With("backend", types.BackendSQLite)),
	)
	b.tables = make(map[string]*table)

	names, err := existingTables(db)
	if err != nil {
		db.Close()
		return err
	}
	for _, name := range names {
		b.tables[name] = newTable(b, name)
	}

	b.attached = true
	return nil
}

// Detach closes open subscriptions and the database. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.broker.Close()
	b.attached = false
	b.tables = make(map[string]*table)

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("closing sqlite database: %w", err)
		}
		b.db = nil
	}
	return nil
}

// EnsureTable creates the named table if it does not exist.
func (b *Backend) EnsureTable(ctx context.Context, name string) error {
	if !validTableName(name) {
		return types.ErrInvalidTable
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	if _, ok := b.tables[name]; ok {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, createTableSQL(name)); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	b.tables[name] = newTable(b, name)
	b.logger.Info("table ready", "backend", types.BackendSQLite, "table", name)
	return nil
}

// WaitReady pings the database until it answers, ctx is done, or the
// configured ready timeout elapses.
func (b *Backend) WaitReady(ctx context.Context) error {
	b.mu.RLock()
	db, attached, timeout := b.db, b.attached, b.config.GetReadyTimeout()
	b.mu.RUnlock()
	if !attached {
		return types.ErrStoreDetached
	}
	return waitReady(ctx, timeout, db.PingContext)
}

// GetTable returns a Table interface for the specified table name.
// Returns ErrTableNotFound if the table has not been provisioned.
// Returns ErrStoreDetached if the backend is not attached.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	t, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return t, nil
}

// conn returns the open database, or ErrStoreDetached.
func (b *Backend) conn() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	return b.db, nil
}

func waitReady(ctx context.Context, timeout time.Duration, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for sqlite: %w", err)
		case <-ticker.C:
		}
	}
}
