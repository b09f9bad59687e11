package fluxq

import (
	"context"
	"database/sql"
)

// RowScanner decodes the current row of a result set.
type RowScanner[T any] func(rows *sql.Rows) (T, error)

// FromQuery returns a consumable over the rows of a SQL query. Every run
// executes the query again; the result set is closed when the run ends,
// including runs stopped early by Take or a closed iterator.
func FromQuery[T any](ctx context.Context, db *sql.DB, query string, scan RowScanner[T], args ...any) Consumable[T] {
	requireNotNil("db", db == nil)
	requireNotNil("scan", scan == nil)
	return FromSource[T](&querySource[T]{ctx: ctx, db: db, query: query, args: args, scan: scan})
}

type querySource[T any] struct {
	ctx   context.Context
	db    *sql.DB
	query string
	args  []any
	scan  RowScanner[T]
}

func (s *querySource[T]) Enumerate() (Enumerator[T], error) {
	rows, err := s.db.QueryContext(s.ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	return &rowsEnumerator[T]{rows: rows, scan: s.scan}, nil
}

type rowsEnumerator[T any] struct {
	rows *sql.Rows
	scan RowScanner[T]
}

func (e *rowsEnumerator[T]) Next() (T, bool, error) {
	var zero T
	if !e.rows.Next() {
		return zero, false, e.rows.Err()
	}
	v, err := e.scan(e.rows)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (e *rowsEnumerator[T]) Close() error {
	return e.rows.Close()
}
