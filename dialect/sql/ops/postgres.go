package ops

import (
	"context"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
)

// Postgres implements Operations for PostgreSQL. Inserts and updates carry
// RETURNING *, so the written row comes back with the statement itself.
type Postgres struct {
	base
}

// NewPostgres returns the PostgreSQL operations.
func NewPostgres() Operations {
	return &Postgres{base{
		dialect:   dialect.Postgres,
		serial:    "SERIAL PRIMARY KEY",
		numbered:  true,
		returning: true,
	}}
}

// NormalizeInsert zips the returned row with the table columns.
func (p *Postgres) NormalizeInsert(ctx context.Context, conn *sql.Connection, table, _ string, res *Result, _ []any) (*mirrorm.Record, error) {
	var key any
	if res != nil {
		key = res.LastInsertID
	}
	return fromReturning(ctx, p, conn, table, key, res)
}

// NormalizeUpdate zips the returned row with the table columns.
func (p *Postgres) NormalizeUpdate(ctx context.Context, conn *sql.Connection, table, _ string, pkValue any, res *Result) (*mirrorm.Record, error) {
	return fromReturning(ctx, p, conn, table, pkValue, res)
}
