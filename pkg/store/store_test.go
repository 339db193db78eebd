package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  types.Config
		wantErr error
	}{
		{"memory", types.Config{Backend: types.BackendMemory}, nil},
		{"sqlite", types.Config{Backend: types.BackendSQLite}, nil},
		{"postgres", types.Config{Backend: types.BackendPostgres}, nil},
		{"empty", types.Config{}, types.ErrBackendEmpty},
		{"unknown", types.Config{Backend: "mongo"}, types.ErrBackendUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.config, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer s.Detach()

	require.NoError(t, types.Provision(t.Context(), s))
	for _, name := range types.StandardTableNames {
		_, err := s.GetTable(name)
		assert.NoError(t, err, name)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(types.Config{Backend: types.BackendPostgres}, nil)
	assert.ErrorIs(t, err, types.ErrPostgresDSNEmpty)
}
