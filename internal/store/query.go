package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Selector describes a projection over a collection.
//
// Semantics:
//
//	SELECT id, <fields...> FROM <collection> [WHERE live] ORDER BY id [LIMIT n]
//
// The document id is always the first column. A Selector with no Fields and
// Limit 1 is the cheapest existence probe: no body is materialized.
type Selector struct {
	// Fields lists body properties to project, in order.
	Fields []string

	// Limit caps the number of rows; 0 means no limit.
	Limit int

	// IncludeDeleted also returns tombstoned rows.
	IncludeDeleted bool
}

// Row is one projected document. Values holds every selected field; a field
// missing from the body maps to "".
type Row struct {
	ID      string
	Values  map[string]string
	Deleted bool
}

// Query runs sel against the collection.
// Rows are ordered by id for deterministic output. Returns an empty slice
// (not nil) when nothing matches.
func (c *Collection) Query(ctx context.Context, sel Selector) ([]Row, error) {
	query, params, err := compileSelector(c.scope, c.name, sel)
	if err != nil {
		return nil, err
	}

	rows, err := c.store.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", c.scope, c.name, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows, sel.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s.%s: %w", c.scope, c.name, err)
	}
	return out, nil
}

// Count returns the number of live documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE scope = ? AND collection = ? AND deleted = 0
	`, c.scope, c.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", c.scope, c.name, err)
	}
	return n, nil
}

// compileSelector converts a Selector to parameterized SQL.
// Property paths are bound as parameters to json_extract, never
// interpolated; names are still restricted to identifiers so a path cannot
// address nested or array members.
func compileSelector(scope, collection string, sel Selector) (string, []any, error) {
	if sel.Limit < 0 {
		return "", nil, fmt.Errorf("%w: negative limit %d", ErrInvalidSelector, sel.Limit)
	}

	columns := []string{"id", "deleted"}
	params := make([]any, 0, len(sel.Fields)+3)
	for _, field := range sel.Fields {
		if !isIdentifier(field) {
			return "", nil, fmt.Errorf("%w: field %q", ErrInvalidSelector, field)
		}
		columns = append(columns, "json_extract(body, ?)")
		params = append(params, "$."+field)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM documents WHERE scope = ? AND collection = ?", strings.Join(columns, ", "))
	params = append(params, scope, collection)

	if !sel.IncludeDeleted {
		b.WriteString(" AND deleted = 0")
	}

	// Always ordered so repeated queries return rows in the same order.
	b.WriteString(" ORDER BY id COLLATE BINARY ASC")

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}

	return b.String(), params, nil
}

func scanRow(rows *sql.Rows, fields []string) (Row, error) {
	var row Row
	values := make([]sql.NullString, len(fields))

	dest := make([]any, 0, len(fields)+2)
	dest = append(dest, &row.ID, &row.Deleted)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return Row{}, fmt.Errorf("scan row: %w", err)
	}

	row.Values = make(map[string]string, len(fields))
	for i, field := range fields {
		row.Values[field] = values[i].String
	}
	return row, nil
}

// isIdentifier reports whether s is [A-Za-z_][A-Za-z0-9_]*.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
