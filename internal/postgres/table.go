package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mesh-intelligence/obay/pkg/types"
)

type table struct {
	name  string
	ident string
	store *Store
}

var _ types.Table = (*table)(nil)

func newTable(s *Store, name string) *table {
	return &table{name: name, ident: ident(name), store: s}
}

func (t *table) Name() string { return t.name }

func (t *table) Get(ctx context.Context, id string) (types.Record, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	conn, err := t.store.conn()
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = conn.QueryRow(ctx, "SELECT doc FROM "+t.ident+" WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", t.name, id, err)
	}
	return decodeDoc(raw)
}

func (t *table) Insert(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForInsert(doc)
	if err != nil {
		return types.Change{}, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.Change{}, fmt.Errorf("encoding %s record: %w", t.name, err)
	}
	conn, err := t.store.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.store.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		tag, err := conn.Exec(ctx,
			"INSERT INTO "+t.ident+" (id, doc) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING",
			rec.ID(), string(raw))
		if err != nil {
			return types.Change{}, fmt.Errorf("inserting into %s: %w", t.name, err)
		}
		if tag.RowsAffected() == 0 {
			return types.Change{}, types.ErrDuplicateID
		}
		return types.Change{NewVal: rec}, nil
	})
}

func (t *table) Update(ctx context.Context, doc types.Record) (types.Change, error) {
	rec, err := types.ForUpdate(doc)
	if err != nil {
		return types.Change{}, err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.Change{}, fmt.Errorf("encoding %s record: %w", t.name, err)
	}
	conn, err := t.store.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.store.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return types.Change{}, fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var old []byte
		err = tx.QueryRow(ctx, "SELECT doc FROM "+t.ident+" WHERE id = $1 FOR UPDATE", rec.ID()).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Change{}, nil
		}
		if err != nil {
			return types.Change{}, fmt.Errorf("reading %s/%s: %w", t.name, rec.ID(), err)
		}
		if _, err := tx.Exec(ctx, "UPDATE "+t.ident+" SET doc = $1::jsonb WHERE id = $2", string(raw), rec.ID()); err != nil {
			return types.Change{}, fmt.Errorf("updating %s/%s: %w", t.name, rec.ID(), err)
		}
		if err := tx.Commit(ctx); err != nil {
			return types.Change{}, fmt.Errorf("committing transaction: %w", err)
		}
		oldRec, err := decodeDoc(old)
		if err != nil {
			return types.Change{}, err
		}
		return types.Change{OldVal: oldRec, NewVal: rec}, nil
	})
}

func (t *table) Delete(ctx context.Context, id string) (types.Change, error) {
	if id == "" {
		return types.Change{}, types.ErrInvalidID
	}
	conn, err := t.store.conn()
	if err != nil {
		return types.Change{}, err
	}
	return t.store.broker.Mutate(ctx, t.name, func() (types.Change, error) {
		var old []byte
		err := conn.QueryRow(ctx, "DELETE FROM "+t.ident+" WHERE id = $1 RETURNING doc", id).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
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

func (t *table) Query(ctx context.Context, q types.Query) ([]types.Record, error) {
	stmt, args, err := selectSQL(t.name, q)
	if err != nil {
		return nil, err
	}
	conn, err := t.store.conn()
	if err != nil {
		return nil, err
	}
	return t.queryDocs(ctx, conn, stmt, args...)
}

func (t *table) Count(ctx context.Context, filters map[string]any) (int, error) {
	stmt, args, err := countSQL(t.name, filters)
	if err != nil {
		return 0, err
	}
	conn, err := t.store.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.name, err)
	}
	return int(n), nil
}

func (t *table) Changes(ctx context.Context, q types.FeedQuery) (types.Cursor, error) {
	stmt, args, err := snapshotSQL(t.name, q)
	if err != nil {
		return nil, err
	}
	conn, err := t.store.conn()
	if err != nil {
		return nil, err
	}
	return t.store.broker.Subscribe(ctx, t.name, q, func(ctx context.Context) ([]types.Record, error) {
		return t.queryDocs(ctx, conn, stmt, args...)
	})
}

func (t *table) queryDocs(ctx context.Context, conn db, stmt string, args ...any) ([]types.Record, error) {
	rows, err := conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", t.name, err)
		}
		rec, err := decodeDoc(raw)
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

func decodeDoc(raw []byte) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return rec, nil
}
