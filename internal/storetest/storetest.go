// Package storetest holds the conformance checks every types.Store backend
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// Factory returns an attached, empty store. Run detaches it when the test
// ends.
type Factory func(t *testing.T) types.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s types.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"InsertGet", testInsertGet},
		{"InsertDuplicate", testInsertDuplicate},
		{"InsertInvalidID", testInsertInvalidID},
		{"UpdateReplaces", testUpdateReplaces},
		{"UpdateMissing", testUpdateMissing},
		{"Delete", testDelete},
		{"QueryFilters", testQueryFilters},
		{"QueryOrderSkipLimit", testQueryOrderSkipLimit},
		{"QueryOrderTies", testQueryOrderTies},
		{"Count", testCount},
		{"ChangesSnapshotAndTail", testChanges},
		{"ChangesClose", testChangesClose},
		{"ChangesWindowRefill", testChangesWindowRefill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Detach() })
			require.NoError(t, types.Provision(context.Background(), s))
			tt.fn(t, s)
		})
	}
}

func notes(t *testing.T, s types.Store) types.Table {
	t.Helper()
	tbl, err := s.GetTable(types.NotesTable)
	require.NoError(t, err)
	return tbl
}

func mustInsert(t *testing.T, tbl types.Table, doc types.Record) types.Record {
	t.Helper()
	c, err := tbl.Insert(context.Background(), doc)
	require.NoError(t, err)
	require.Nil(t, c.OldVal)
	require.NotNil(t, c.NewVal)
	return c.NewVal
}

func ids(recs []types.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID())
	}
	return out
}

func testLifecycle(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureTable(ctx, types.NotesTable))
	require.ErrorIs(t, s.EnsureTable(ctx, ""), types.ErrInvalidTable)

	_, err := s.GetTable("missing")
	assert.ErrorIs(t, err, types.ErrTableNotFound)

	require.NoError(t, s.Detach())
	require.NoError(t, s.Detach())
	_, err = s.GetTable(types.NotesTable)
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func testInsertGet(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)

	doc := types.Record{
		"name":     "a",
		"pinned":   true,
		"priority": float64(3),
		"tags":     []any{"x", "y"},
	}
	rec := mustInsert(t, tbl, doc)
	id := rec.ID()
	require.NotEmpty(t, id)
	_, hadID := doc["id"]
	assert.False(t, hadID, "Insert must not modify the caller's document")

	got, err := tbl.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got["name"] = "mutated"
	again, err := tbl.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", again["name"])

	explicit := mustInsert(t, tbl, types.Record{"id": "fixed", "name": "b"})
	assert.Equal(t, "fixed", explicit.ID())

	_, err = tbl.Get(ctx, "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testInsertDuplicate(t *testing.T, s types.Store) {
	tbl := notes(t, s)
	mustInsert(t, tbl, types.Record{"id": "dup", "name": "a"})
	_, err := tbl.Insert(context.Background(), types.Record{"id": "dup", "name": "b"})
	assert.ErrorIs(t, err, types.ErrDuplicateID)

	got, err := tbl.Get(context.Background(), "dup")
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])
}

func testInsertInvalidID(t *testing.T, s types.Store) {
	tbl := notes(t, s)
	_, err := tbl.Insert(context.Background(), types.Record{"id": float64(7), "name": "a"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
	_, err = tbl.Insert(context.Background(), types.Record{"id": "", "name": "a"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func testUpdateReplaces(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	rec := mustInsert(t, tbl, types.Record{"name": "a", "body": "old"})

	c, err := tbl.Update(ctx, types.Record{"id": rec.ID(), "name": "b"})
	require.NoError(t, err)
	assert.Equal(t, rec, c.OldVal)
	assert.Equal(t, types.Record{"id": rec.ID(), "name": "b"}, c.NewVal)

	got, err := tbl.Get(ctx, rec.ID())
	require.NoError(t, err)
	_, hasBody := got["body"]
	assert.False(t, hasBody, "Update replaces the whole document")

	_, err = tbl.Update(ctx, types.Record{"name": "no id"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func testUpdateMissing(t *testing.T, s types.Store) {
	tbl := notes(t, s)
	c, err := tbl.Update(context.Background(), types.Record{"id": "ghost", "name": "a"})
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = tbl.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testDelete(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	rec := mustInsert(t, tbl, types.Record{"name": "a"})

	c, err := tbl.Delete(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, rec, c.OldVal)
	assert.Nil(t, c.NewVal)

	_, err = tbl.Get(ctx, rec.ID())
	assert.ErrorIs(t, err, types.ErrNotFound)

	c, err = tbl.Delete(ctx, rec.ID())
	require.NoError(t, err)
	assert.True(t, c.IsZero())
}

func testQueryFilters(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	a := mustInsert(t, tbl, types.Record{"name": "a", "pinned": true, "priority": float64(1)})
	b := mustInsert(t, tbl, types.Record{"name": "b", "pinned": false, "priority": float64(2)})

	tests := []struct {
		name    string
		filters map[string]any
		want    []string
	}{
		{"none", nil, []string{a.ID(), b.ID()}},
		{"string", map[string]any{"name": "a"}, []string{a.ID()}},
		{"bool", map[string]any{"pinned": false}, []string{b.ID()}},
		{"number", map[string]any{"priority": float64(2)}, []string{b.ID()}},
		{"combined", map[string]any{"name": "a", "priority": float64(2)}, []string{}},
		{"no match", map[string]any{"name": "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Query(ctx, types.Query{Filters: tt.filters})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testQueryOrderSkipLimit(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	for i, p := range []float64{3, 1, 4, 2, 5} {
		mustInsert(t, tbl, types.Record{"id": fmt.Sprintf("n%d", i), "name": "x", "priority": p})
	}

	asc, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Order: types.OrderAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n3", "n0", "n2", "n4"}, ids(asc))

	desc, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Order: types.OrderDesc})
	require.NoError(t, err)
	reversed := ids(asc)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	assert.Equal(t, reversed, ids(desc))

	first, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Limit: 2})
	require.NoError(t, err)
	second, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Skip: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n3"}, ids(first))
	assert.Equal(t, []string{"n0", "n2"}, ids(second))

	past, err := tbl.Query(ctx, types.Query{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	unordered, err := tbl.Query(ctx, types.Query{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"n0", "n1", "n2"}, ids(unordered))
}

func testQueryOrderTies(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	for i, p := range []float64{1, 1, 0, 1, 2} {
		mustInsert(t, tbl, types.Record{"id": fmt.Sprintf("t%d", i), "name": "x", "priority": p})
	}

	asc, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Order: types.OrderAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t0", "t1", "t3", "t4"}, ids(asc))

	desc, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Order: types.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"t4", "t3", "t1", "t0", "t2"}, ids(desc))

	var paged []string
	for skip := 0; skip < 5; skip += 2 {
		page, err := tbl.Query(ctx, types.Query{OrderBy: "priority", Order: types.OrderDesc, Skip: skip, Limit: 2})
		require.NoError(t, err)
		paged = append(paged, ids(page)...)
	}
	assert.Equal(t, ids(desc), paged)
}

func testCount(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	for _, name := range []string{"a", "a", "b"} {
		mustInsert(t, tbl, types.Record{"name": name})
	}

	n, err := tbl.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tbl.Count(ctx, map[string]any{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tbl.Count(ctx, map[string]any{"name": "c"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func next(t *testing.T, c types.Cursor) types.ChangeEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := c.Next(ctx)
	require.NoError(t, err)
	return ev
}

func testChanges(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	a := mustInsert(t, tbl, types.Record{"name": "a"})
	mustInsert(t, tbl, types.Record{"name": "b"})

	cur, err := tbl.Changes(ctx, types.FeedQuery{Filters: map[string]any{"name": "a"}})
	require.NoError(t, err)
	defer cur.Close()

	ev := next(t, cur)
	assert.True(t, ev.Initial)
	assert.Equal(t, a.ID(), ev.Change.NewVal.ID())
	assert.True(t, next(t, cur).IsState())

	idle, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	_, err = cur.Next(idle)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	mustInsert(t, tbl, types.Record{"name": "b"})
	c := mustInsert(t, tbl, types.Record{"name": "a"})
	ev = next(t, cur)
	assert.Equal(t, c.ID(), ev.Change.NewVal.ID())
	assert.Nil(t, ev.Change.OldVal)

	_, err = tbl.Update(ctx, types.Record{"id": c.ID(), "name": "a", "body": "x"})
	require.NoError(t, err)
	ev = next(t, cur)
	assert.Equal(t, "x", ev.Change.NewVal["body"])
	assert.Equal(t, c.ID(), ev.Change.OldVal.ID())

	_, err = tbl.Delete(ctx, a.ID())
	require.NoError(t, err)
	ev = next(t, cur)
	assert.Equal(t, a.ID(), ev.Change.OldVal.ID())
	assert.Nil(t, ev.Change.NewVal)
}

func testChangesClose(t *testing.T, s types.Store) {
	tbl := notes(t, s)
	cur, err := tbl.Changes(context.Background(), types.FeedQuery{})
	require.NoError(t, err)
	assert.True(t, next(t, cur).IsState())
	require.NoError(t, cur.Close())

	mustInsert(t, tbl, types.Record{"name": "a"})
	_, err = cur.Next(context.Background())
	assert.True(t, errors.Is(err, types.ErrSubscriptionClosed))
}

func testChangesWindowRefill(t *testing.T, s types.Store) {
	ctx := context.Background()
	tbl := notes(t, s)
	first := mustInsert(t, tbl, types.Record{"name": "x"})
	second := mustInsert(t, tbl, types.Record{"name": "x"})
	mustInsert(t, tbl, types.Record{"name": "y"})
	third := mustInsert(t, tbl, types.Record{"name": "x"})

	q := types.FeedQuery{Filters: map[string]any{"name": "x"}, Limit: 2}
	cur, err := tbl.Changes(ctx, q)
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, first.ID(), next(t, cur).Change.NewVal.ID())
	assert.Equal(t, second.ID(), next(t, cur).Change.NewVal.ID())
	assert.True(t, next(t, cur).IsState())

	_, err = tbl.Delete(ctx, first.ID())
	require.NoError(t, err)
	ev := next(t, cur)
	assert.Equal(t, first.ID(), ev.Change.OldVal.ID())
	assert.Nil(t, ev.Change.NewVal)

	ev = next(t, cur)
	assert.Nil(t, ev.Change.OldVal)
	assert.Equal(t, third.ID(), ev.Change.NewVal.ID())
	assert.False(t, ev.Initial)

	rows, err := tbl.Query(ctx, types.Query{Filters: q.Filters, Limit: q.Limit})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID(), third.ID()}, ids(rows))

	// Leaving the filter frees a slot that nothing can take.
	_, err = tbl.Update(ctx, types.Record{"id": second.ID(), "name": "z"})
	require.NoError(t, err)
	ev = next(t, cur)
	assert.Equal(t, second.ID(), ev.Change.OldVal.ID())
	assert.Nil(t, ev.Change.NewVal)

	idle, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	_, err = cur.Next(idle)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
