package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/mesh-intelligence/obay/internal/feed"
	"github.com/mesh-intelligence/obay/pkg/types"
)

type entry struct {
	seq uint64
	rec types.Record
}

// Table is an in-memory types.Table. Every record handed in or out is a deep
// copy.
type Table struct {
	name   string
	store  *Store
	broker *feed.Broker

	mu   sync.RWMutex
	rows map[string]entry
	seq  uint64
}

var _ types.Table = (*Table)(nil)

func newTable(s *Store, name string) *Table {
	return &Table{name: name, store: s, broker: s.broker, rows: make(map[string]entry)}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Subscribers returns the number of open change subscriptions.
func (t *Table) Subscribers() int { return t.broker.Subscribers(t.name) }

// Get returns the record with id.
func (t *Table) Get(_ context.Context, id string) (types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	if err := t.store.check(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.rows[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return e.rec.Clone(), nil
}

// Insert adds a new record.
func (t *Table) Insert(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForInsert(doc)
	if err != nil {
		return types.Change{}, err
	}
	if err := t.store.check(); err != nil {
		return types.Change{}, err
	}
	return t.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		id := rec.ID()
		if _, ok := t.rows[id]; ok {
			return types.Change{}, types.ErrDuplicateID
		}
		t.seq++
		t.rows[id] = entry{seq: t.seq, rec: rec}
		return types.Change{NewVal: rec.Clone()}, nil
	})
}

// Update replaces the record whose id doc embeds, keeping its position in
// insertion order.
func (t *Table) Update(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForUpdate(doc)
	if err != nil {
		return types.Change{}, err
	}
	if err := t.store.check(); err != nil {
		return types.Change{}, err
	}
	return t.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		id := rec.ID()
		old, ok := t.rows[id]
		if !ok {
			return types.Change{}, nil
		}
		t.rows[id] = entry{seq: old.seq, rec: rec}
		return types.Change{OldVal: old.rec.Clone(), NewVal: rec.Clone()}, nil
	})
}

// Delete removes the record with id.
func (t *Table) Delete(ctx context.Context, id string) (types.Change, error) {
	if id == "" {
		return types.Change{}, types.ErrInvalidID
	}
	if err := t.store.check(); err != nil {
		return types.Change{}, err
	}
	return t.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		old, ok := t.rows[id]
		if !ok {
			return types.Change{}, nil
		}
		delete(t.rows, id)
		return types.Change{OldVal: old.rec}, nil
	})
}

// Query returns matching records ordered, then skipped, then limited.
func (t *Table) Query(_ context.Context, q types.Query) ([]types.Record, error) {
	if err := t.store.check(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	matched := t.matching(q.Filters)
	t.mu.RUnlock()

	// Ties keep insertion order ascending; descending is the exact reverse.
	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return types.CompareValues(matched[i].rec[q.OrderBy], matched[j].rec[q.OrderBy]) < 0
		})
		if q.Order == types.OrderDesc {
			slices.Reverse(matched)
		}
	}

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]types.Record, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.rec.Clone())
	}
	return out, nil
}

// Count returns the number of records matching filters.
func (t *Table) Count(_ context.Context, filters map[string]any) (int, error) {
	if err := t.store.check(); err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.rows {
		if types.MatchesFilters(e.rec, filters) {
			n++
		}
	}
	return n, nil
}

// Changes subscribes to the table's change feed.
func (t *Table) Changes(ctx context.Context, q types.FeedQuery) (types.Cursor, error) {
	return t.broker.Subscribe(ctx, t.name, q, func(context.Context) ([]types.Record, error) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		var recs []types.Record
		for _, e := range t.matching(q.Filters) {
			if q.ID != "" && e.rec.ID() != q.ID {
				continue
			}
			recs = append(recs, e.rec)
		}
		return recs, nil
	})
}

// matching returns entries that satisfy filters in insertion order. Callers
// hold t.mu.
func (t *Table) matching(filters map[string]any) []entry {
	var out []entry
	for _, e := range t.rows {
		if types.MatchesFilters(e.rec, filters) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
