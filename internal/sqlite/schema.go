package sqlite

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// quoteIdent quotes a validated table name for use in SQL text.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createTableSQL returns the DDL for a document table. seq preserves
// insertion order for unordered queries and sort ties.
func createTableSQL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    doc TEXT NOT NULL
);`, quoteIdent(name))
}

// existingTables lists the document tables already present in db.
func existingTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		if validTableName(name) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// jsonPath returns the SQLite JSON path selecting a top-level property.
func jsonPath(prop string) string {
	return `$."` + strings.ReplaceAll(prop, `"`, `\"`) + `"`
}

// whereClause builds the filter predicate and its arguments. Each filter
// checks the JSON type as well as the value so that the string "1", the
// number 1 and true stay distinct.
func whereClause(id string, filters map[string]any) (string, []any) {
	var conds []string
	var args []any
	if id != "" {
		conds = append(conds, "id = ?")
		args = append(args, id)
	}
	for _, k := range sortedKeys(filters) {
		path := jsonPath(k)
		switch v := filters[k].(type) {
		case bool:
			want := "false"
			if v {
				want = "true"
			}
			conds = append(conds, "json_type(doc, ?) = ?")
			args = append(args, path, want)
		case string:
			conds = append(conds, "(json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?)")
			args = append(args, path, path, v)
		case nil:
			conds = append(conds, "json_type(doc, ?) = 'null'")
			args = append(args, path)
		default:
			conds = append(conds, "(json_type(doc, ?) IN ('integer', 'real') AND json_extract(doc, ?) = ?)")
			args = append(args, path, path, v)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
