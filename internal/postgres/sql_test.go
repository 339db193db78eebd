package postgres

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/internal/storetest"
	"github.com/mesh-intelligence/obay/pkg/types"
)

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		name     string
		q        types.Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "all",
			q:        types.Query{},
			wantSQL:  `SELECT doc FROM "notes" ORDER BY seq ASC`,
			wantArgs: nil,
		},
		{
			name:     "filters",
			q:        types.Query{Filters: map[string]any{"name": "a", "pinned": true}},
			wantSQL:  `SELECT doc FROM "notes" WHERE doc @> $1::jsonb ORDER BY seq ASC`,
			wantArgs: []any{`{"name":"a","pinned":true}`},
		},
		{
			name:     "order desc with window",
			q:        types.Query{OrderBy: "priority", Order: types.OrderDesc, Skip: 2, Limit: 3},
			wantSQL:  `SELECT doc FROM "notes" ORDER BY doc -> $1 DESC NULLS LAST, seq DESC LIMIT $2 OFFSET $3`,
			wantArgs: []any{"priority", 3, 2},
		},
		{
			name:     "order asc skip only",
			q:        types.Query{OrderBy: "name", Skip: 1},
			wantSQL:  `SELECT doc FROM "notes" ORDER BY doc -> $1 ASC NULLS FIRST, seq ASC OFFSET $2`,
			wantArgs: []any{"name", 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, args, err := selectSQL("notes", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, stmt)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCountSQL(t *testing.T) {
	stmt, args, err := countSQL("wordGroups", map[string]any{"name": "verbs"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "wordGroups" WHERE doc @> $1::jsonb`, stmt)
	assert.Equal(t, []any{`{"name":"verbs"}`}, args)
}

func TestSnapshotSQL(t *testing.T) {
	stmt, args, err := snapshotSQL("notes", types.FeedQuery{ID: "n1", Filters: map[string]any{"rank": float64(2)}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, `SELECT doc FROM "notes" WHERE id = $1 AND doc @> $2::jsonb ORDER BY seq ASC LIMIT $3`, stmt)
	assert.Equal(t, []any{"n1", `{"rank":2}`, 5}, args)
}

func TestCreateTableSQL(t *testing.T) {
	stmts := createTableSQL("wordGroups")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "wordGroups"`)
	assert.Contains(t, stmts[1], `"wordgroups_doc_idx" ON "wordGroups"`)
}

func TestValidTableName(t *testing.T) {
	assert.True(t, validTableName("wordGroups"))
	assert.False(t, validTableName(""))
	assert.False(t, validTableName("x; DROP TABLE y"))
}

func TestStore_AttachRequiresDSN(t *testing.T) {
	s := NewStore(nil)
	err := s.Attach(types.Config{Backend: types.BackendPostgres})
	assert.ErrorIs(t, err, types.ErrPostgresDSNEmpty)
}

// TestStore_Conformance runs against a live server when OBAY_TEST_POSTGRES_DSN
// is set. Every table is dropped before the suite runs.
func TestStore_Conformance(t *testing.T) {
	dsn := os.Getenv("OBAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OBAY_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) types.Store {
		s := NewStore(nil)
		require.NoError(t, s.Attach(types.Config{Backend: types.BackendPostgres, PostgresDSN: dsn}))
		require.NoError(t, s.WaitReady(t.Context()))
		for _, name := range types.StandardTableNames {
			_, err := s.db.Exec(t.Context(), "DROP TABLE IF EXISTS "+ident(name))
			require.NoError(t, err)
		}
		return s
	})
}
