package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect"
	"github.com/syssam/mirrorm/dialect/sql"
)

// MySQL implements Operations for MySQL and MariaDB. Writes do not return
// rows; the written row is read back by its key.
type MySQL struct {
	base
}

// NewMySQL returns the MySQL operations.
func NewMySQL() Operations {
	return &MySQL{base{
		dialect: dialect.MySQL,
		serial:  "INT AUTO_INCREMENT PRIMARY KEY",
	}}
}

// ListColumns lists the columns with DESCRIBE.
func (m *MySQL) ListColumns(ctx context.Context, conn *sql.Connection, table string) ([]string, error) {
	query := "DESCRIBE " + table
	db, err := conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	columns, err := describe(ctx, db, query)
	conn.Observe(ctx, query, nil, start, err, true)
	if err != nil {
		return nil, mirrorm.NewExecutionError(conn.String(), query, err)
	}
	return columns, nil
}

// NormalizeInsert selects the inserted row by the driver's generated key.
func (m *MySQL) NormalizeInsert(ctx context.Context, conn *sql.Connection, table, pk string, res *Result, _ []any) (*mirrorm.Record, error) {
	if res == nil || res.LastInsertID == nil {
		return nil, mirrorm.NewRecoveryError(conn.String(), table, nil, "no generated key")
	}
	return selectByKey(ctx, m, conn, table, pk, res.LastInsertID)
}

// NormalizeUpdate selects the updated row by its key.
func (m *MySQL) NormalizeUpdate(ctx context.Context, conn *sql.Connection, table, pk string, pkValue any, _ *Result) (*mirrorm.Record, error) {
	return selectByKey(ctx, m, conn, table, pk, pkValue)
}

// describe returns the first column (Field) of every DESCRIBE row.
func describe(ctx context.Context, db sql.ExecQuerier, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	n, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(n) == 0 {
		return nil, fmt.Errorf("%s: no result columns", query)
	}
	var columns []string
	for rows.Next() {
		values := make([]any, len(n))
		ptrs := make([]any, len(n))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		columns = append(columns, fmt.Sprint(mirrorm.Coerce(values[0])))
	}
	return columns, rows.Err()
}
