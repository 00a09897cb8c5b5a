package store

import (
	"context"
	"fmt"
	"strings"
)

// QueryRow is one result row of an ad-hoc query, or the error that ended
// it. Columns is repeated on every row.
type QueryRow struct {
	Columns []string
	Values  []any
	Err     error
}

// readKeywords are the statements ExecSelectQuery accepts.
var readKeywords = []string{"SELECT", "WITH", "VALUES", "EXPLAIN"}

// DefaultQuery returns the query the side view starts with for a file.
func DefaultQuery(path string) string {
	return "SELECT * FROM variables WHERE path = '" + strings.ReplaceAll(path, "'", "''") + "'"
}

// ExecSelectQuery runs a user-supplied read statement and calls row for
// each result row. Errors are reported as a final QueryRow with Err set,
// never returned. The statement runs inside a transaction that is always
// rolled back, with the connection switched to query_only.
func (s *Store) ExecSelectQuery(ctx context.Context, query string, row func(QueryRow)) {
	if err := checkReadOnly(query); err != nil {
		row(QueryRow{Err: err})
		return
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		row(QueryRow{Err: fmt.Errorf("begin query: %w", err)})
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		row(QueryRow{Err: fmt.Errorf("enable query_only: %w", err)})
		return
	}
	defer tx.ExecContext(context.Background(), "PRAGMA query_only = OFF")

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		row(QueryRow{Err: err})
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		row(QueryRow{Err: err})
		return
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			row(QueryRow{Columns: cols, Err: err})
			return
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		row(QueryRow{Columns: cols, Values: vals})
	}
	if err := rows.Err(); err != nil {
		row(QueryRow{Columns: cols, Err: err})
	}
}

// checkReadOnly accepts a single statement starting with a read keyword.
func checkReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, "; \t\r\n")
	if q == "" {
		return fmt.Errorf("empty query: %w", ErrNotReadOnly)
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("multiple statements: %w", ErrNotReadOnly)
	}
	first := strings.ToUpper(strings.Fields(q)[0])
	for _, kw := range readKeywords {
		if first == kw {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", first, ErrNotReadOnly)
}
