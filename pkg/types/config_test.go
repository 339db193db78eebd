package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "rethinkdb", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "memory backend needs nothing else",
			config:  Config{Backend: "memory"},
			wantErr: nil,
		},
		{
			name:    "postgres without DSN is rejected",
			config:  Config{Backend: "postgres"},
			wantErr: ErrPostgresDSNEmpty,
		},
		{
			name:    "postgres with DSN",
			config:  Config{Backend: "postgres", PostgresDSN: "postgres://localhost/obay"},
			wantErr: nil,
		},
		{
			name:    "negative backlog is rejected",
			config:  Config{Backend: "memory", FeedBacklog: -1},
			wantErr: ErrFeedBacklogInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	if got := c.GetFeedBacklog(); got != DefaultFeedBacklog {
		t.Fatalf("GetFeedBacklog() = %d, want %d", got, DefaultFeedBacklog)
	}
	if got := c.GetReadyTimeout(); got != DefaultReadyTimeout {
		t.Fatalf("GetReadyTimeout() = %v, want %v", got, DefaultReadyTimeout)
	}

	c = Config{FeedBacklog: 8, ReadyTimeout: time.Second}
	if got := c.GetFeedBacklog(); got != 8 {
		t.Fatalf("GetFeedBacklog() = %d, want 8", got)
	}
	if got := c.GetReadyTimeout(); got != time.Second {
		t.Fatalf("GetReadyTimeout() = %v, want 1s", got)
	}
}
