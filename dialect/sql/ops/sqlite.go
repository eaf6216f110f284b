package ops

import (
	"context"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
)

// SQLite implements Operations for SQLite (3.35 or newer, for RETURNING).
type SQLite struct {
	base
}

// NewSQLite returns the SQLite operations.
func NewSQLite() Operations {
	return &SQLite{base{
		dialect:   dialect.SQLite,
		serial:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		returning: true,
	}}
}

// NormalizeInsert zips the returned row with the table columns.
func (s *SQLite) NormalizeInsert(ctx context.Context, conn *sql.Connection, table, _ string, res *Result, _ []any) (*mirrorm.Record, error) {
	var key any
	if res != nil {
		key = res.LastInsertID
	}
	return fromReturning(ctx, s, conn, table, key, res)
}

// NormalizeUpdate zips the returned row with the table columns.
func (s *SQLite) NormalizeUpdate(ctx context.Context, conn *sql.Connection, table, _ string, pkValue any, res *Result) (*mirrorm.Record, error) {
	return fromReturning(ctx, s, conn, table, pkValue, res)
}
