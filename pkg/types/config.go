package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend     string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir     string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`

	// FeedBacklog bounds the number of undelivered change events a single
	// subscription may hold before it is terminated. Zero selects the default.
	FeedBacklog int `json:"feed_backlog,omitempty" yaml:"feed_backlog,omitempty" mapstructure:"feed_backlog"`

	// ReadyTimeout bounds how long WaitReady polls a store that is not yet
	// answering. Zero selects the default.
	ReadyTimeout time.Duration `json:"ready_timeout,omitempty" yaml:"ready_timeout,omitempty" mapstructure:"ready_timeout"`
}

// Supported backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Defaults applied by GetFeedBacklog and GetReadyTimeout.
const (
	DefaultFeedBacklog  = 1024
	DefaultReadyTimeout = 30 * time.Second
)

// Config validation errors.
var (
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
	ErrPostgresDSNEmpty   = errors.New("postgres backend requires postgres_dsn")
	ErrFeedBacklogInvalid = errors.New("feed backlog must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendMemory:   true,
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.PostgresDSN == "" {
		return ErrPostgresDSNEmpty
	}
	if c.FeedBacklog < 0 {
		return ErrFeedBacklogInvalid
	}
	return nil
}

// GetFeedBacklog returns the configured backlog or DefaultFeedBacklog.
func (c Config) GetFeedBacklog() int {
	if c.FeedBacklog <= 0 {
		return DefaultFeedBacklog
	}
	return c.FeedBacklog
}

// GetReadyTimeout returns the configured ready timeout or DefaultReadyTimeout.
func (c Config) GetReadyTimeout() time.Duration {
	if c.ReadyTimeout <= 0 {
		return DefaultReadyTimeout
	}
	return c.ReadyTimeout
}
