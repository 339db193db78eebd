// Tests for the SQLite backend.
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/internal/storetest"
	"github.com/mesh-intelligence/obay/pkg/types"
)

func attach(t *testing.T, dir string) *Backend {
	t.Helper()
	b := NewBackend(nil)
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	return b
}

func TestBackend_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) types.Store {
		return attach(t, t.TempDir())
	})
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()
	b := attach(t, tmpDir)
	defer b.Detach()

	_, err := os.Stat(filepath.Join(tmpDir, DBFile))
	require.NoError(t, err, "obay.db not created")

	err = b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir})
	assert.ErrorIs(t, err, types.ErrAlreadyAttached)
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend(nil)
	err := b.Attach(types.Config{})
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
}

func TestBackend_DataSurvivesReattach(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	b := attach(t, tmpDir)
	require.NoError(t, types.Provision(ctx, b))
	tbl, err := b.GetTable(types.WordsTable)
	require.NoError(t, err)
	_, err = tbl.Insert(ctx, types.Record{"id": "w1", "name": "run"})
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	b = attach(t, tmpDir)
	defer b.Detach()
	tbl, err = b.GetTable(types.WordsTable)
	require.NoError(t, err, "existing tables are registered on attach")
	got, err := tbl.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "run", got["name"])
}

func TestBackend_EnsureTableRejectsBadNames(t *testing.T) {
	b := attach(t, t.TempDir())
	defer b.Detach()

	for _, name := range []string{"", "1notes", "notes; DROP TABLE x", `no"tes`} {
		assert.ErrorIs(t, b.EnsureTable(context.Background(), name), types.ErrInvalidTable, name)
	}
}

func TestBackend_FilterTypesStayDistinct(t *testing.T) {
	ctx := context.Background()
	b := attach(t, t.TempDir())
	defer b.Detach()
	require.NoError(t, types.Provision(ctx, b))
	tbl, err := b.GetTable(types.NotesTable)
	require.NoError(t, err)

	for _, doc := range []types.Record{
		{"id": "str", "name": "1"},
		{"id": "num", "name": float64(1)},
		{"id": "bool", "name": true},
	} {
		_, err := tbl.Insert(ctx, doc)
		require.NoError(t, err)
	}

	tests := []struct {
		value any
		want  string
	}{
		{"1", "str"},
		{float64(1), "num"},
		{true, "bool"},
	}
	for _, tt := range tests {
		rows, err := tbl.Query(ctx, types.Query{Filters: map[string]any{"name": tt.value}})
		require.NoError(t, err)
		require.Len(t, rows, 1, "filter %v", tt.value)
		assert.Equal(t, tt.want, rows[0].ID())
	}
}

func TestBackend_DetachedTableOperations(t *testing.T) {
	ctx := context.Background()
	b := attach(t, t.TempDir())
	require.NoError(t, types.Provision(ctx, b))
	tbl, err := b.GetTable(types.NotesTable)
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	_, err = tbl.Get(ctx, "x")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	_, err = tbl.Insert(ctx, types.Record{"name": "a"})
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, b.WaitReady(ctx), types.ErrStoreDetached)
}

func TestWaitReady_RetriesUntilPingSucceeds(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), 5*time.Second, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReady_Timeout(t *testing.T) {
	boom := errors.New("down")
	err := waitReady(context.Background(), 50*time.Millisecond, func(context.Context) error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause("", nil)
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause("n1", map[string]any{"pinned": true, "name": "a"})
	assert.Equal(t,
		" WHERE id = ? AND (json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?) AND json_type(doc, ?) = ?",
		where)
	assert.Equal(t, []any{"n1", `$."name"`, `$."name"`, "a", `$."pinned"`, "true"}, args)
}
