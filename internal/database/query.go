package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Where accumulates AND-ed conditions and their arguments.
type Where struct {
	conds []string
	args  []interface{}
}

// Add appends a condition with its placeholder arguments.
func (w *Where) Add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// Search appends an OR of LIKE matches over columns when term is non-empty.
func (w *Where) Search(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}
	like := "%" + escapeLike(term) + "%"
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " LIKE ? ESCAPE '\\'"
		w.args = append(w.args, like)
	}
	w.conds = append(w.conds, "("+strings.Join(parts, " OR ")+")")
}

// SQL renders the WHERE clause (with a leading space) or "".
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the accumulated arguments.
func (w *Where) Args() []interface{} {
	return w.args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// OrderBy translates a DRF-style ordering parameter ("-year,category") into an
// ORDER BY clause using only columns present in allowed. Unknown fields are
// ignored; when nothing usable remains, fallback is used.
func OrderBy(ordering string, allowed map[string]string, fallback string) string {
	var parts []string
	for _, field := range strings.Split(ordering, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		col, ok := allowed[field]
		if !ok {
			continue
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// InPlaceholders returns "?,?,?" for n arguments.
func InPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Count returns the number of rows matched by from (tables and joins) and w.
func Count(ctx context.Context, q Querier, from string, w *Where) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+from+w.SQL(), w.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// LimitOffset renders a LIMIT/OFFSET clause.
func LimitOffset(limit, offset int) string {
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
