package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// table implements types.Table for one document table.
type table struct {
	name    string   // Table name (e.g. "notes").
	quoted  string   // Quoted identifier for SQL text.
	backend *Backend // Parent backend for DB access and the change feed.
}

var _ types.Table = (*table)(nil)

func newTable(b *Backend, name string) *table {
	return &table{name: name, quoted: quoteIdent(name), backend: b}
}

// Name returns the table name.
func (t *table) Name() string { return t.name }

// Get retrieves a record by id.
// Returns ErrInvalidID if id is empty, ErrNotFound if not found.
func (t *table) Get(ctx context.Context, id string) (types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	var doc string
	err = db.QueryRowContext(ctx, "SELECT doc FROM "+t.quoted+" WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", t.name, id, err)
	}
	return decodeDoc(doc)
}

// Insert stores a new record, assigning a UUID v7 id when it has none.
func (t *table) Insert(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForInsert(doc)
	if err != nil {
		return types.Change{}, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.Change{}, fmt.Errorf("encoding %s record: %w", t.name, err)
	}
	db, err := t.backend.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.backend.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		res, err := db.ExecContext(ctx,
			"INSERT INTO "+t.quoted+" (id, doc) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
			rec.ID(), string(raw))
		if err != nil {
			return types.Change{}, fmt.Errorf("inserting into %s: %w", t.name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return types.Change{}, fmt.Errorf("inserting into %s: %w", t.name, err)
		}
		if n == 0 {
			return types.Change{}, types.ErrDuplicateID
		}
		return types.Change{NewVal: rec}, nil
	})
}

// Update replaces the document whose id rec embeds. An absent id yields a
// zero change.
func (t *table) Update(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForUpdate(doc)
	if err != nil {
		return types.Change{}, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.Change{}, fmt.Errorf("encoding %s record: %w", t.name, err)
	}
	db, err := t.backend.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.backend.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return types.Change{}, fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		var old string
		err = tx.QueryRowContext(ctx, "SELECT doc FROM "+t.quoted+" WHERE id = ?", rec.ID()).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			return types.Change{}, nil
		}
		if err != nil {
			return types.Change{}, fmt.Errorf("reading %s/%s: %w", t.name, rec.ID(), err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE "+t.quoted+" SET doc = ? WHERE id = ?", string(raw), rec.ID()); err != nil {
			return types.Change{}, fmt.Errorf("updating %s/%s: %w", t.name, rec.ID(), err)
		}
		if err := tx.Commit(); err != nil {
			return types.Change{}, fmt.Errorf("committing transaction: %w", err)
		}
		oldRec, err := decodeDoc(old)
		if err != nil {
			return types.Change{}, err
		}
		return types.Change{OldVal: oldRec, NewVal: rec}, nil
	})
}

// Delete removes a record by id. An absent id yields a zero change.
func (t *table) Delete(ctx context.Context, id string) (types.Change, error) {
	if id == "" {
		return types.Change{}, types.ErrInvalidID
	}
	db, err := t.backend.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.backend.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		var old string
		err := db.QueryRowContext(ctx, "DELETE FROM "+t.quoted+" WHERE id = ? RETURNING doc", id).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			return types.Change{}, nil
		}
		if err != nil {
			return types.Change{}, fmt.Errorf("deleting %s/%s: %w", t.name, id, err)
		}
		oldRec, err := decodeDoc(old)
		if err != nil {
			return types.Change{}, err
		}
		return types.Change{OldVal: oldRec}, nil
	})
}

// Query returns records matching q.Filters, ordered, skipped and limited.
func (t *table) Query(ctx context.Context, q types.Query) ([]types.Record, error) {
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	where, args := whereClause("", q.Filters)
	stmt := "SELECT doc FROM " + t.quoted + where
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Order == types.OrderDesc {
			dir = "DESC"
		}
		stmt += " ORDER BY json_extract(doc, ?) " + dir + ", seq " + dir
		args = append(args, jsonPath(q.OrderBy))
	} else {
		stmt += " ORDER BY seq ASC"
	}
	if q.Limit > 0 || q.Skip > 0 {
		limit := -1
		if q.Limit > 0 {
			limit = q.Limit
		}
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Skip)
	}
	return t.queryDocs(ctx, db, stmt, args...)
}

// Count returns the number of records matching filters.
func (t *table) Count(ctx context.Context, filters map[string]any) (int, error) {
	db, err := t.backend.conn()
	if err != nil {
		return 0, err
	}
	where, args := whereClause("", filters)
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.quoted+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.name, err)
	}
	return n, nil
}

// Changes subscribes to mutations of this table.
func (t *table) Changes(ctx context.Context, q types.FeedQuery) (types.Cursor, error) {
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	return t.backend.broker.Subscribe(ctx, t.name, q, func(ctx context.Context) ([]types.Record, error) {
		where, args := whereClause(q.ID, q.Filters)
		stmt := "SELECT doc FROM " + t.quoted + where + " ORDER BY seq ASC"
		if q.Limit > 0 {
			stmt += " LIMIT ?"
			args = append(args, q.Limit)
		}
		return t.queryDocs(ctx, db, stmt, args...)
	})
}

func (t *table) queryDocs(ctx context.Context, db *sql.DB, stmt string, args ...any) ([]types.Record, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.name, err)
		}
		rec, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", t.name, err)
	}
	return out, nil
}

func decodeDoc(doc string) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return rec, nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
