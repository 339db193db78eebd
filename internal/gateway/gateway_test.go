package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/internal/memory"
	"github.com/mesh-intelligence/obay/internal/metrics"
	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

func newGateway(t *testing.T, kind types.Kind) *Gateway {
	t.Helper()
	s := memory.NewStore(nil)
	require.NoError(t, s.Attach(types.Config{Backend: types.BackendMemory}))
	t.Cleanup(func() { _ = s.Detach() })
	require.NoError(t, types.Provision(context.Background(), s))

	schemas, err := schema.LoadAll(schema.Embedded(), types.StandardKinds)
	require.NoError(t, err)
	gws, err := ForKinds(s, schemas, []types.Kind{kind}, WithMetrics(metrics.New()))
	require.NoError(t, err)
	return gws[0]
}

func create(t *testing.T, g *Gateway, doc types.Record) types.Record {
	t.Helper()
	env, err := g.Create(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, env.Found)
	return env.Record()
}

func TestGateway_CreateThenGet(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)

	rec := create(t, g, types.Record{"name": "a", "tags": []any{"x"}, "priority": float64(1)})
	require.NotEmpty(t, rec.ID())

	env, err := g.Get(ctx, map[string]string{"id": rec.ID()})
	require.NoError(t, err)
	assert.True(t, env.Found)
	assert.Equal(t, rec, env.Record())
	assert.Nil(t, env.Count)
}

func TestGateway_GetMissingID(t *testing.T) {
	g := newGateway(t, types.KindNote)
	env, err := g.Get(context.Background(), map[string]string{"id": "ghost"})
	require.NoError(t, err)
	assert.False(t, env.Found)
	assert.Nil(t, env.Result)
}

func TestGateway_FilterNoMatch(t *testing.T) {
	g := newGateway(t, types.KindNote)
	create(t, g, types.Record{"name": "a"})

	env, err := g.Get(context.Background(), map[string]string{"name": "zzz"})
	require.NoError(t, err)
	assert.False(t, env.Found)
	assert.Empty(t, env.Records())
}

func TestGateway_OrderReverses(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	for _, p := range []float64{2, 5, 1, 4, 3} {
		create(t, g, types.Record{"name": fmt.Sprintf("n%v", p), "priority": p})
	}

	asc, err := g.Get(ctx, map[string]string{"orderBy": "priority"})
	require.NoError(t, err)
	desc, err := g.Get(ctx, map[string]string{"orderBy": "priority", "order": "desc"})
	require.NoError(t, err)

	a, d := asc.Records(), desc.Records()
	require.Len(t, a, 5)
	require.Len(t, d, 5)
	for i := range a {
		assert.Equal(t, a[i].ID(), d[len(d)-1-i].ID())
	}
	assert.Equal(t, float64(1), a[0]["priority"])
}

func TestGateway_OrderReversesWithTies(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	var created []string
	for _, p := range []float64{1, 1, 1, 0, 1} {
		created = append(created, create(t, g, types.Record{"name": "tie", "priority": p}).ID())
	}

	asc, err := g.Get(ctx, map[string]string{"name": "tie", "orderBy": "priority"})
	require.NoError(t, err)
	desc, err := g.Get(ctx, map[string]string{"name": "tie", "orderBy": "priority", "order": "desc"})
	require.NoError(t, err)

	a, d := asc.Records(), desc.Records()
	require.Len(t, a, 5)
	require.Len(t, d, 5)
	assert.Equal(t, created[3], a[0].ID())
	assert.Equal(t, created[0], a[1].ID())
	for i := range a {
		assert.Equal(t, a[i].ID(), d[len(d)-1-i].ID(), "position %d", i)
	}

	var paged []string
	for skip := 0; skip < 5; skip += 2 {
		env, err := g.Get(ctx, map[string]string{
			"name": "tie", "orderBy": "priority", "order": "desc",
			"skip": fmt.Sprint(skip), "limit": "2",
		})
		require.NoError(t, err)
		for _, r := range env.Records() {
			paged = append(paged, r.ID())
		}
	}
	want := make([]string, 0, len(d))
	for _, r := range d {
		want = append(want, r.ID())
	}
	assert.Equal(t, want, paged)
}

func TestGateway_SkipLimitWindows(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	for i := range 7 {
		create(t, g, types.Record{"name": "x", "priority": float64(i)})
	}

	seen := map[string]bool{}
	for skip := 0; skip < 7; skip += 3 {
		env, err := g.Get(ctx, map[string]string{
			"orderBy": "priority",
			"skip":    fmt.Sprint(skip),
			"limit":   "3",
		})
		require.NoError(t, err)
		rows := env.Records()
		assert.LessOrEqual(t, len(rows), 3)
		for _, r := range rows {
			assert.False(t, seen[r.ID()], "windows overlap at %s", r.ID())
			seen[r.ID()] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestGateway_CountBranches(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	for range 5 {
		create(t, g, types.Record{"name": "a"})
	}
	create(t, g, types.Record{"name": "b"})

	t.Run("count only", func(t *testing.T) {
		env, err := g.Get(ctx, map[string]string{"name": "a", "count": "true", "result": "false"})
		require.NoError(t, err)
		require.NotNil(t, env.Count)
		assert.Equal(t, 5, *env.Count)
		assert.Nil(t, env.Result)
		assert.True(t, env.Found)
	})

	t.Run("count with limit", func(t *testing.T) {
		env, err := g.Get(ctx, map[string]string{"count": "1", "limit": "2"})
		require.NoError(t, err)
		assert.Len(t, env.Records(), 2)
		require.NotNil(t, env.Count)
		assert.GreaterOrEqual(t, *env.Count, 2)
		assert.Equal(t, 6, *env.Count)
	})

	t.Run("zero count", func(t *testing.T) {
		env, err := g.Get(ctx, map[string]string{"name": "c", "count": "true", "result": "false"})
		require.NoError(t, err)
		require.NotNil(t, env.Count)
		assert.Equal(t, 0, *env.Count)
		assert.False(t, env.Found)
	})

	t.Run("neither", func(t *testing.T) {
		env, err := g.Get(ctx, map[string]string{"result": "false"})
		require.NoError(t, err)
		assert.False(t, env.Found)
		assert.Nil(t, env.Result)
		assert.Nil(t, env.Count)
	})
}

func TestGateway_UnknownFilterIgnored(t *testing.T) {
	g := newGateway(t, types.KindNote)
	create(t, g, types.Record{"name": "a"})
	create(t, g, types.Record{"name": "b"})

	env, err := g.Get(context.Background(), map[string]string{"foo": "a"})
	require.NoError(t, err)
	assert.Len(t, env.Records(), 2)

	env, err = g.Get(context.Background(), map[string]string{"name": "a"})
	require.NoError(t, err)
	assert.Len(t, env.Records(), 1)
}

func TestGateway_CreateValidation(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindUser)

	_, err := g.Create(ctx, types.Record{"email": "nobody"})
	var ve *schema.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "user", ve.Kind)

	env, err := g.Get(ctx, map[string]string{"count": "true"})
	require.NoError(t, err)
	assert.Equal(t, 0, *env.Count, "rejected documents are never written")
}

func TestGateway_CreateDuplicate(t *testing.T) {
	g := newGateway(t, types.KindWord)
	create(t, g, types.Record{"id": "w1", "name": "run"})

	_, err := g.Create(context.Background(), types.Record{"id": "w1", "name": "walk"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDuplicateID)
	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, OpCreate, se.Op)
	assert.Equal(t, "word", se.Kind)
}

func TestGateway_Update(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	rec := create(t, g, types.Record{"name": "a", "body": "old"})

	env, err := g.Update(ctx, types.Record{"id": rec.ID(), "name": "b"})
	require.NoError(t, err)
	assert.True(t, env.Found)
	assert.Equal(t, "b", env.Record()["name"])
	assert.Equal(t, rec, env.OldVal)

	got, err := g.Get(ctx, map[string]string{"id": rec.ID()})
	require.NoError(t, err)
	_, hasBody := got.Record()["body"]
	assert.False(t, hasBody)
}

func TestGateway_UpdateMissing(t *testing.T) {
	g := newGateway(t, types.KindNote)
	env, err := g.Update(context.Background(), types.Record{"id": "ghost", "name": "a"})
	require.NoError(t, err)
	assert.False(t, env.Found)
	assert.Nil(t, env.Result)
	assert.Nil(t, env.OldVal)
}

func TestGateway_UpdateValidation(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	rec := create(t, g, types.Record{"name": "a"})

	var ve *schema.ValidationError
	_, err := g.Update(ctx, types.Record{"name": "no id"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "id", ve.Violations[0].Field)

	_, err = g.Update(ctx, types.Record{"id": rec.ID(), "name": ""})
	require.True(t, errors.As(err, &ve))

	got, err := g.Get(ctx, map[string]string{"id": rec.ID()})
	require.NoError(t, err)
	assert.Equal(t, "a", got.Record()["name"])
}

func TestGateway_Delete(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindWordGroup)
	rec := create(t, g, types.Record{"name": "verbs"})

	env, err := g.Delete(ctx, rec.ID())
	require.NoError(t, err)
	assert.True(t, env.Found)
	assert.Equal(t, rec, env.Record())
	assert.Equal(t, rec, env.OldVal)

	env, err = g.Delete(ctx, rec.ID())
	require.NoError(t, err)
	assert.False(t, env.Found)

	got, err := g.Get(ctx, map[string]string{"id": rec.ID()})
	require.NoError(t, err)
	assert.False(t, got.Found)
}

func nextEvent(t *testing.T, c types.Cursor) types.ChangeEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := c.Next(ctx)
	require.NoError(t, err)
	return ev
}

func TestGateway_WatchReplaysThenReady(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindNote)
	a := create(t, g, types.Record{"name": "a"})
	b := create(t, g, types.Record{"name": "b"})

	cur, err := g.Watch(ctx, map[string]string{"orderBy": "name", "skip": "1", "count": "true"})
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, a.ID(), nextEvent(t, cur).Change.NewVal.ID())
	assert.Equal(t, b.ID(), nextEvent(t, cur).Change.NewVal.ID())
	ready := nextEvent(t, cur)
	assert.Equal(t, types.StateReady, ready.State)

	idle, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = cur.Next(idle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c := create(t, g, types.Record{"name": "c"})
	ev := nextEvent(t, cur)
	assert.Equal(t, c.ID(), ev.Change.NewVal.ID())
	assert.Nil(t, ev.Change.OldVal)
}

func TestGateway_WatchFilteredByID(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, types.KindUser)
	u := create(t, g, types.Record{"name": "ann"})
	create(t, g, types.Record{"name": "bob"})

	cur, err := g.Watch(ctx, map[string]string{"id": u.ID()})
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, u.ID(), nextEvent(t, cur).Change.NewVal.ID())
	assert.True(t, nextEvent(t, cur).IsState())

	_, err = g.Delete(ctx, u.ID())
	require.NoError(t, err)
	ev := nextEvent(t, cur)
	assert.Equal(t, u.ID(), ev.Change.OldVal.ID())
	assert.Nil(t, ev.Change.NewVal)
}

func TestGateway_WatchCloseIdempotent(t *testing.T) {
	g := newGateway(t, types.KindNote)
	cur, err := g.Watch(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())

	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, types.ErrSubscriptionClosed)
}

func TestStoreError(t *testing.T) {
	err := &StoreError{Op: OpGet, Kind: "note", Err: types.ErrStoreDetached}
	assert.Equal(t, "note get: store is detached", err.Error())
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}
