// Package ops defines the Operations contract that hides every dialect
// asymmetry (placeholders, auto-increment keys, RETURNING support, column
// listing) behind one interface, and implements it for PostgreSQL, MySQL
// and SQLite.
//
// Builders are pure. Execute runs every statement in its own transaction
// on one backend:
//
//	o, err := ops.Default.Get(conn)
//	if err != nil {
//	    return err
//	}
//	q := o.BuildInsert("users", []string{"name", "age"})
//	res, err := o.Execute(ctx, conn, q, []any{"John", 30}, true)
//	if err != nil {
//	    return err // *mirrorm.ExecutionError
//	}
//	rec, err := o.NormalizeInsert(ctx, conn, "users", "id", res, args)
package ops

import (
	"context"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect/sql"
	"github.com/syssam/mirrorm/dialect/sql/schema"
)

// Operations is implemented once per dialect. Implementations are stateless
// and shared between every connection of the dialect.
type Operations interface {
	// Dialect returns the dialect tag served by the implementation.
	Dialect() string
	// Placeholder returns the positional placeholder for the 1-based index i.
	Placeholder(i int) string

	// BuildCreateTable returns the CREATE TABLE statement. When pk is not
	// among columns, the dialect's auto-increment key column is prepended.
	BuildCreateTable(table string, columns []*schema.Column, pk string, ifNotExists bool) string
	// BuildInsert returns an INSERT with one placeholder per column.
	BuildInsert(table string, columns []string) string
	// BuildUpdate returns an UPDATE setting every column, filtered by pk.
	// The primary-key value is bound last.
	BuildUpdate(table string, columns []string, pk string) string
	// BuildDelete returns a DELETE filtered by pk.
	BuildDelete(table, pk string) string
	// BuildSelect returns a SELECT of all columns, with the raw where
	// fragment appended when non-empty.
	BuildSelect(table, where string) string

	// Execute runs query inside a single-statement transaction.
	Execute(ctx context.Context, conn *sql.Connection, query string, args []any, fetch bool) (*Result, error)
	// ListColumns returns the column names of table in definition order.
	ListColumns(ctx context.Context, conn *sql.Connection, table string) ([]string, error)
	// NormalizeInsert turns the result of an insert into the inserted Record.
	NormalizeInsert(ctx context.Context, conn *sql.Connection, table, pk string, res *Result, args []any) (*mirrorm.Record, error)
	// NormalizeUpdate turns the result of an update into the updated Record.
	NormalizeUpdate(ctx context.Context, conn *sql.Connection, table, pk string, pkValue any, res *Result) (*mirrorm.Record, error)
}

// Result is the dialect-independent outcome of Execute.
type Result struct {
	// Columns of the returned rows, empty for plain writes.
	Columns []string
	// Rows holds the raw row values. It is only populated in fetch mode.
	Rows [][]any
	// LastInsertID is the last generated key, or nil when unknown.
	LastInsertID any
	// RowsAffected is the affected-row count of a write, or the number of
	// rows returned by a read or RETURNING statement.
	RowsAffected int64
	// Returning reports whether the statement returned rows.
	Returning bool
}

// First returns the first row, or nil.
func (r *Result) First() []any {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}
