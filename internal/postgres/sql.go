package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mesh-intelligence/obay/pkg/types"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// createTableSQL returns the DDL for a document table and its GIN index.
// seq preserves insertion order for unordered queries and sort ties.
func createTableSQL(name string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    doc JSONB NOT NULL
)`, ident(name)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (doc jsonb_path_ops)`,
			ident(strings.ToLower(name)+"_doc_idx"), ident(name)),
	}
}

// builder accumulates positional arguments.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// where returns the predicate for an id and equality filters. Filters are
// combined into a single JSONB containment test.
func (b *builder) where(id string, filters map[string]any) (string, error) {
	var conds []string
	if id != "" {
		conds = append(conds, "id = "+b.arg(id))
	}
	if len(filters) > 0 {
		raw, err := json.Marshal(filters)
		if err != nil {
			return "", fmt.Errorf("encoding filters: %w", err)
		}
		conds = append(conds, "doc @> "+b.arg(string(raw))+"::jsonb")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

// selectSQL builds the list query for q.
func selectSQL(tableName string, q types.Query) (string, []any, error) {
	var b builder
	where, err := b.where("", q.Filters)
	if err != nil {
		return "", nil, err
	}
	stmt := "SELECT doc FROM " + ident(tableName) + where
	if q.OrderBy != "" {
		dir, seq := "ASC NULLS FIRST", "seq ASC"
		if q.Order == types.OrderDesc {
			dir, seq = "DESC NULLS LAST", "seq DESC"
		}
		stmt += " ORDER BY doc -> " + b.arg(q.OrderBy) + " " + dir + ", " + seq
	} else {
		stmt += " ORDER BY seq ASC"
	}
	if q.Limit > 0 {
		stmt += " LIMIT " + b.arg(q.Limit)
	}
	if q.Skip > 0 {
		stmt += " OFFSET " + b.arg(q.Skip)
	}
	return stmt, b.args, nil
}

// countSQL builds the count query for filters.
func countSQL(tableName string, filters map[string]any) (string, []any, error) {
	var b builder
	where, err := b.where("", filters)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + ident(tableName) + where, b.args, nil
}

// snapshotSQL builds the initial read for a change subscription.
func snapshotSQL(tableName string, q types.FeedQuery) (string, []any, error) {
	var b builder
	where, err := b.where(q.ID, q.Filters)
	if err != nil {
		return "", nil, err
	}
	stmt := "SELECT doc FROM " + ident(tableName) + where + " ORDER BY seq ASC"
	if q.Limit > 0 {
		stmt += " LIMIT " + b.arg(q.Limit)
	}
	return stmt, b.args, nil
}
