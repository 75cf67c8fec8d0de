package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/minerva/internal/utils"
)

// Executor runs guarded queries against the application database.
type Executor struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
	log     zerolog.Logger
}

// NewExecutor creates an executor that returns at most maxRows rows per query,
// whatever LIMIT the query itself carries.
func NewExecutor(db *sql.DB, maxRows int, timeout time.Duration, log zerolog.Logger) *Executor {
	if maxRows <= 0 {
		maxRows = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		db:      db,
		maxRows: maxRows,
		timeout: timeout,
		log:     log.With().Str("component", "alice_executor").Logger(),
	}
}

// SetMaxRows changes the row cap; non-positive values are ignored.
func (e *Executor) SetMaxRows(n int) {
	if n > 0 {
		e.maxRows = n
	}
}

// Prepare strips a trailing semicolon and appends a LIMIT when the outer
// query has none. A LIMIT inside a subquery does not count.
func (e *Executor) Prepare(query string) string {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if !hasOuterLimit(stripLiterals(query)) {
		query = fmt.Sprintf("%s LIMIT %d", query, e.maxRows)
	}
	return query
}

// hasOuterLimit reports whether a LIMIT keyword appears outside parentheses.
func hasOuterLimit(clean string) bool {
	depth := 0
	for i := 0; i < len(clean); {
		c := clean[i]
		switch {
		case c == '"' || c == '`' || c == '\'':
			i = skipQuoted(clean, i, c)
			continue
		case c == '[':
			i = skipBracket(clean, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && isIdentByte(c) && (i == 0 || !isIdentByte(clean[i-1])):
			if hasWord(clean[i:], "LIMIT") {
				return true
			}
			for i < len(clean) && isIdentByte(clean[i]) {
				i++
			}
			continue
		}
		i++
	}
	return false
}

// Run validates and executes query inside a transaction that cannot write.
// The returned query is the one actually executed.
func (e *Executor) Run(ctx context.Context, query string) ([]Row, string, error) {
	if err := ValidateSQL(query); err != nil {
		return nil, query, err
	}
	query = e.Prepare(query)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, query, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = 1"); err != nil {
		return nil, query, fmt.Errorf("failed to enter read-only mode: %w", err)
	}
	defer func() {
		// The connection returns to the pool, so the pragma must not outlive the query.
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = 0"); err != nil {
			e.log.Error().Err(err).Msg("Failed to reset query_only")
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, query, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	done := utils.MeasureDBQuery("assistant", e.log)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, query, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows, e.maxRows)
	if err != nil {
		return nil, query, err
	}
	done(int64(len(out)))
	return out, query, nil
}

// scanRows reads at most limit rows.
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	out := []Row{}
	for len(out) < limit && rows.Next() {
		values := make([]interface{}, len(cols))
		targets := make([]interface{}, len(cols))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
