package ops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect/sql"
	"github.com/syssam/mirrorm/dialect/sql/schema"
)

// base implements the parts of Operations shared by every dialect. The
// dialect types embed it and add their own normalization.
type base struct {
	dialect string
	// serial is the column definition of a generated primary key.
	serial string
	// numbered selects $n placeholders instead of ?.
	numbered bool
	// returning appends RETURNING * to inserts and updates.
	returning bool
}

func (b *base) Dialect() string {
	return b.dialect
}

func (b *base) Placeholder(i int) string {
	if b.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (b *base) BuildCreateTable(table string, columns []*schema.Column, pk string, ifNotExists bool) string {
	defs := make([]string, 0, len(columns)+1)
	if schema.Lookup(columns, pk) == nil {
		defs = append(defs, pk+" "+b.serial)
	}
	for _, c := range columns {
		if c == nil {
			continue
		}
		defs = append(defs, c.Name+" "+c.Type)
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(")")
	return sb.String()
}

func (b *base) BuildInsert(table string, columns []string) string {
	phs := make([]string, len(columns))
	for i := range columns {
		phs[i] = b.Placeholder(i + 1)
	}
	q := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")"
	if b.returning {
		q += " RETURNING *"
	}
	return q
}

func (b *base) BuildUpdate(table string, columns []string, pk string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = " + b.Placeholder(i+1)
	}
	q := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + pk + " = " + b.Placeholder(len(columns)+1)
	if b.returning {
		q += " RETURNING *"
	}
	return q
}

func (b *base) BuildDelete(table, pk string) string {
	return "DELETE FROM " + table + " WHERE " + pk + " = " + b.Placeholder(1)
}

func (b *base) BuildSelect(table, where string) string {
	q := "SELECT * FROM " + table
	if where = strings.TrimSpace(where); where != "" {
		q += " WHERE " + where
	}
	return q
}

// DropTable returns the DROP TABLE statement. Its text is the same for
// every supported dialect.
func DropTable(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + table
	}
	return "DROP TABLE " + table
}

// Count returns a SELECT COUNT(*) statement over table.
func Count(table, where string) string {
	q := "SELECT COUNT(*) FROM " + table
	if where = strings.TrimSpace(where); where != "" {
		q += " WHERE " + where
	}
	return q
}

// Execute runs the statement in its own transaction. Reads and RETURNING
// statements are always consumed as rows; the rows are kept only in fetch
// mode. The generated key of a RETURNING statement is the first column of
// the last row, that of a plain insert comes from the driver.
func (b *base) Execute(ctx context.Context, conn *sql.Connection, query string, args []any, fetch bool) (*Result, error) {
	db, err := conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mirrorm.NewExecutionError(conn.String(), query, err)
	}
	isQuery := returnsRows(query)
	start := time.Now()
	var res *Result
	if isQuery {
		res, err = queryRows(ctx, tx, query, args)
	} else {
		res, err = execStmt(ctx, tx, query, args)
	}
	conn.Observe(ctx, query, args, start, err, isQuery)
	if err != nil {
		return nil, mirrorm.NewExecutionError(conn.String(), query, rollback(tx, err))
	}
	if err := tx.Commit(); err != nil {
		return nil, mirrorm.NewExecutionError(conn.String(), query, err)
	}
	if n := len(res.Rows); b.returning && n > 0 && len(res.Rows[n-1]) > 0 {
		res.LastInsertID = mirrorm.Coerce(res.Rows[n-1][0])
	}
	if !fetch {
		res.Rows = nil
	}
	return res, nil
}

// ListColumns reads the column metadata of an empty result set.
func (b *base) ListColumns(ctx context.Context, conn *sql.Connection, table string) ([]string, error) {
	query := "SELECT * FROM " + table + " LIMIT 0"
	db, err := conn.DB(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		conn.Observe(ctx, query, nil, start, err, true)
		return nil, mirrorm.NewExecutionError(conn.String(), query, err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	conn.Observe(ctx, query, nil, start, err, true)
	if err != nil {
		return nil, mirrorm.NewExecutionError(conn.String(), query, err)
	}
	return columns, nil
}

// fromReturning zips the first returned row with the table columns.
func fromReturning(ctx context.Context, o Operations, conn *sql.Connection, table string, key any, res *Result) (*mirrorm.Record, error) {
	row := res.First()
	if row == nil {
		return nil, mirrorm.NewRecoveryError(conn.String(), table, key, "statement returned no row")
	}
	columns, err := o.ListColumns(ctx, conn, table)
	if err != nil {
		return nil, err
	}
	return mirrorm.RecordOf(columns, row), nil
}

// selectByKey fetches the row with the given key and zips it with the
// table columns.
func selectByKey(ctx context.Context, o Operations, conn *sql.Connection, table, pk string, key any) (*mirrorm.Record, error) {
	query := o.BuildSelect(table, pk+" = "+o.Placeholder(1))
	res, err := o.Execute(ctx, conn, query, []any{key}, true)
	if err != nil {
		return nil, err
	}
	row := res.First()
	if row == nil {
		return nil, mirrorm.NewRecoveryError(conn.String(), table, key, "no row matches the key")
	}
	columns, err := o.ListColumns(ctx, conn, table)
	if err != nil {
		return nil, err
	}
	return mirrorm.RecordOf(columns, row), nil
}

func queryRows(ctx context.Context, tx *sql.Tx, query string, args []any) (*Result, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: columns, Returning: true}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows must be released before the transaction ends.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	res.RowsAffected = int64(len(res.Rows))
	return res, nil
}

func execStmt(ctx context.Context, tx *sql.Tx, query string, args []any) (*Result, error) {
	r, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	if isInsert(query) {
		if id, err := r.LastInsertId(); err == nil && id > 0 {
			res.LastInsertID = id
		}
	}
	return res, nil
}

// rollback calls to tx.Rollback and wraps the given error
// with the rollback error if occurred.
func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

// readPrefixes are the leading keywords of row-returning statements.
var readPrefixes = []string{"SELECT", "WITH", "DESCRIBE", "DESC ", "SHOW", "EXPLAIN", "PRAGMA", "VALUES"}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, p := range readPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return strings.Contains(q, " RETURNING ")
}

func isInsert(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT")
}
