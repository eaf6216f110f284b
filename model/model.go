// Package model binds a table to a primary backend and its shadows and
// exposes row-level CRUD over it.
//
//	users := model.New("users")
//	if err := users.Bind(primary, shadow1, shadow2); err != nil {
//	    return err
//	}
//	err := users.CreateTable(ctx, schema.Columns("name", "TEXT", "age", "INTEGER"), true)
//	u, err := users.Create(ctx, mirrorm.NewRecord().Set("name", "John").Set("age", 30))
//	if me, ok := mirrorm.AsMirrorError(err); ok {
//	    // u was written to the primary; me lists the shadows that failed.
//	}
//
// Reads are served by the primary only. Writes go to the primary first and
// then to every shadow in binding order. A Model is not safe for concurrent
// Bind while operations are in flight.
package model

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/cache"
	"github.com/syssam/mirrorm/dialect/sql"
	"github.com/syssam/mirrorm/dialect/sql/ops"
	"github.com/syssam/mirrorm/dialect/sql/schema"
	"github.com/syssam/mirrorm/mirror"
)

// Metrics receives mirroring and cache outcomes. *metrics.Collector
// implements it.
type Metrics interface {
	mirror.Recorder
	CacheHit(table string)
	CacheMiss(table string)
}

// Model is the binding of one table to a primary connection and an ordered
// list of shadow connections.
type Model struct {
	table    string
	pk       string
	primary  *sql.Connection
	shadows  []*sql.Connection
	coord    *mirror.Coordinator
	registry *ops.Registry
	logger   *slog.Logger
	metrics  Metrics
	cache    mirrorm.Cache
	cacheTTL time.Duration
}

// Option configures a Model.
type Option func(*Model)

// WithPrimaryKey sets the primary-key column. It defaults to "id".
func WithPrimaryKey(pk string) Option {
	return func(m *Model) {
		m.pk = pk
	}
}

// WithRegistry sets the Operations registry. It defaults to ops.Default.
func WithRegistry(r *ops.Registry) Option {
	return func(m *Model) {
		m.registry = r
	}
}

// WithLogger sets the logger receiving one line per operation.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Model) {
		m.metrics = mt
	}
}

// WithCache enables read-through caching of FindByID.
func WithCache(c mirrorm.Cache) Option {
	return func(m *Model) {
		m.cache = c
	}
}

// WithCacheTTL sets the lifetime of cached rows. Zero never expires.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Model) {
		m.cacheTTL = ttl
	}
}

// New returns an unbound Model for table.
func New(table string, opts ...Option) *Model {
	m := &Model{
		table:    table,
		pk:       "id",
		registry: ops.Default,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// TableName returns the conventional table name of a Go type name:
// "UserProfile" becomes "user_profiles".
func TableName(typeName string) string {
	return inflect.Underscore(inflect.Pluralize(typeName))
}

// Table returns the table name.
func (m *Model) Table() string {
	return m.table
}

// PrimaryKey returns the primary-key column.
func (m *Model) PrimaryKey() string {
	return m.pk
}

// Primary returns the primary connection, or nil before Bind.
func (m *Model) Primary() *sql.Connection {
	return m.primary
}

// Shadows returns the shadow connections in binding order.
func (m *Model) Shadows() []*sql.Connection {
	return append([]*sql.Connection(nil), m.shadows...)
}

// Bind sets the connections of the model: the first is the primary, the
// rest are shadows in the given order. Every dialect must be known to the
// registry and every connection identity must be unique, since failures are
// reported by identity; name connections with sql.WithName. Bind performs
// no I/O.
func (m *Model) Bind(conns ...*sql.Connection) error {
	if len(conns) == 0 {
		return mirrorm.NewConfigurationError("bind", "at least one database connection required")
	}
	seen := make(map[string]int, len(conns))
	for i, c := range conns {
		if c == nil {
			return mirrorm.NewConfigurationError("bind", "connection %d is nil", i)
		}
		if _, err := m.registry.Get(c); err != nil {
			return err
		}
		if j, ok := seen[c.String()]; ok {
			return mirrorm.NewConfigurationError("bind", "duplicate backend %q at positions %d and %d, name them with sql.WithName", c.String(), j, i)
		}
		seen[c.String()] = i
	}
	m.primary = conns[0]
	m.shadows = append([]*sql.Connection(nil), conns[1:]...)
	opts := []mirror.Option{mirror.WithLogger(m.logger)}
	if m.metrics != nil {
		opts = append(opts, mirror.WithRecorder(m.metrics))
	}
	m.coord = mirror.New(m.primary, m.shadows, opts...)
	return nil
}

// Disconnect disconnects the primary and every shadow.
func (m *Model) Disconnect() error {
	if m.primary == nil {
		return mirrorm.NewConfigurationError("disconnect", "no active database connection found")
	}
	errs := []error{m.primary.Disconnect()}
	for _, s := range m.shadows {
		errs = append(errs, s.Disconnect())
	}
	return errors.Join(errs...)
}

// CreateTable creates the table on the primary and then on every shadow,
// each through its own dialect. When pk is not among columns, each dialect
// prepends its auto-increment key column.
func (m *Model) CreateTable(ctx context.Context, columns []*schema.Column, ifNotExists bool) (err error) {
	const op = "create_table"
	defer func() { m.log(ctx, op, nil, err) }()
	if err := m.ready(op); err != nil {
		return err
	}
	def := &schema.Table{Name: m.table, PrimaryKey: m.pk, Columns: columns}
	if err := schema.ValidateTable(def).Err(); err != nil {
		return mirrorm.NewValidationError(op, "", err.Error())
	}
	_, err = mirror.Mirror(ctx, m.coord, op, func(ctx context.Context, conn *sql.Connection) (struct{}, error) {
		o, err := m.registry.Get(conn)
		if err != nil {
			return struct{}{}, err
		}
		_, err = o.Execute(ctx, conn, o.BuildCreateTable(m.table, columns, m.pk, ifNotExists), nil, false)
		return struct{}{}, err
	})
	return err
}

// DropTable drops the table on the primary and then on every shadow.
func (m *Model) DropTable(ctx context.Context, ifExists bool) (err error) {
	const op = "drop_table"
	defer func() { m.log(ctx, op, nil, err) }()
	if err := m.ready(op); err != nil {
		return err
	}
	query := ops.DropTable(m.table, ifExists)
	_, err = mirror.Mirror(ctx, m.coord, op, func(ctx context.Context, conn *sql.Connection) (struct{}, error) {
		o, err := m.registry.Get(conn)
		if err != nil {
			return struct{}{}, err
		}
		_, err = o.Execute(ctx, conn, query, nil, false)
		return struct{}{}, err
	})
	if m.cache != nil {
		m.cacheErr(ctx, "invalidate", m.cache.DeletePrefix(ctx, mirrorm.CacheKey{Table: m.table}.Prefix()))
	}
	return err
}

// Create inserts a row built from the non-nil, non-key fields of data. The
// row is inserted on the primary first; the shadows then receive the same
// row including the primary's key, so their keys never diverge. Shadow
// failures are reported as *mirrorm.MirrorError along with the entity.
func (m *Model) Create(ctx context.Context, data *mirrorm.Record) (e *Entity, err error) {
	const op = "create"
	defer func() {
		var id any
		if e != nil {
			id = e.ID()
		}
		m.log(ctx, op, id, err)
	}()
	if err := m.ready(op); err != nil {
		return nil, err
	}
	var (
		columns []string
		values  []any
	)
	data.Range(func(k string, v any) bool {
		if k != m.pk && v != nil {
			columns = append(columns, k)
			values = append(values, v)
		}
		return true
	})
	if len(columns) == 0 {
		return nil, mirrorm.NewValidationError(op, "", "no data provided for creation")
	}
	if err := validColumns(op, columns); err != nil {
		return nil, err
	}

	o, err := m.registry.Get(m.primary)
	if err != nil {
		return nil, err
	}
	res, err := o.Execute(ctx, m.primary, o.BuildInsert(m.table, columns), values, true)
	if err != nil {
		return nil, err
	}
	rec, err := o.NormalizeInsert(ctx, m.primary, m.table, m.pk, res, values)
	if err != nil {
		return nil, err
	}
	e = m.hydrate(rec)

	key := rec.Value(m.pk)
	if key == nil {
		key = res.LastInsertID
	}
	if key != nil {
		columns = append(columns, m.pk)
		values = append(values, key)
	} else {
		m.logger.WarnContext(ctx, "generated key unknown, shadows generate their own",
			"table", m.table,
			"backend", m.primary.String(),
		)
	}
	err = m.coord.Replicate(ctx, op, func(ctx context.Context, conn *sql.Connection) error {
		so, err := m.registry.Get(conn)
		if err != nil {
			return err
		}
		_, err = so.Execute(ctx, conn, so.BuildInsert(m.table, columns), values, false)
		return err
	})
	return e, err
}

// FindByID returns the row with the given key from the primary, or nil when
// no row matches.
func (m *Model) FindByID(ctx context.Context, id any) (e *Entity, err error) {
	const op = "find_by_id"
	defer func() { m.log(ctx, op, id, err) }()
	if err := m.ready(op); err != nil {
		return nil, err
	}
	key := mirrorm.CacheKey{Table: m.table, ID: id}.String()
	if m.cache != nil {
		if rec := m.cached(ctx, key); rec != nil {
			return m.hydrate(rec), nil
		}
	}
	rec, err := m.find(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	if m.cache != nil {
		if b, err := cache.EncodeRecord(rec); err != nil {
			m.cacheErr(ctx, "encode", err)
		} else {
			m.cacheErr(ctx, "set", m.cache.Set(ctx, key, b, m.cacheTTL))
		}
	}
	return m.hydrate(rec), nil
}

// FindAll returns the primary's rows matching the raw where fragment, or
// every row when where is empty. The fragment is appended verbatim and
// must use the primary dialect's placeholders for args.
func (m *Model) FindAll(ctx context.Context, where string, args ...any) (es []*Entity, err error) {
	const op = "find_all"
	defer func() { m.log(ctx, op, nil, err) }()
	if err := m.ready(op); err != nil {
		return nil, err
	}
	o, err := m.registry.Get(m.primary)
	if err != nil {
		return nil, err
	}
	res, err := o.Execute(ctx, m.primary, o.BuildSelect(m.table, where), args, true)
	if err != nil {
		return nil, err
	}
	es = make([]*Entity, 0, len(res.Rows))
	if len(res.Rows) == 0 {
		return es, nil
	}
	columns, err := o.ListColumns(ctx, m.primary, m.table)
	if err != nil {
		return nil, err
	}
	for _, row := range res.Rows {
		es = append(es, m.hydrate(mirrorm.RecordOf(columns, row)))
	}
	return es, nil
}

// Count returns the number of primary rows matching the raw where fragment.
func (m *Model) Count(ctx context.Context, where string, args ...any) (n int64, err error) {
	const op = "count"
	defer func() { m.log(ctx, op, nil, err) }()
	if err := m.ready(op); err != nil {
		return 0, err
	}
	o, err := m.registry.Get(m.primary)
	if err != nil {
		return 0, err
	}
	query := ops.Count(m.table, where)
	res, err := o.Execute(ctx, m.primary, query, args, true)
	if err != nil {
		return 0, err
	}
	row := res.First()
	if len(row) == 0 {
		return 0, mirrorm.NewExecutionError(m.primary.String(), query, errors.New("count returned no row"))
	}
	return toInt64(row[0])
}

// DeleteByID deletes the row with the given key on the primary and then on
// every shadow. It reports whether the primary deleted a row.
func (m *Model) DeleteByID(ctx context.Context, id any) (bool, error) {
	return m.delete(ctx, "delete_by_id", id)
}

// NewEntity returns an unsaved entity holding a copy of data. Every
// attribute is considered modified.
func (m *Model) NewEntity(data *mirrorm.Record) *Entity {
	e := &Entity{model: m, data: data.Clone(), dirty: make(map[string]bool)}
	for _, k := range e.data.Keys() {
		e.dirty[k] = true
	}
	return e
}

func (m *Model) delete(ctx context.Context, op string, id any) (ok bool, err error) {
	defer func() { m.log(ctx, op, id, err, "deleted", ok) }()
	if err := m.ready(op); err != nil {
		return false, err
	}
	if !isSet(id) {
		return false, mirrorm.NewValidationError(op, m.pk, "no "+m.pk+" value found for deletion")
	}
	n, err := mirror.Mirror(ctx, m.coord, op, func(ctx context.Context, conn *sql.Connection) (int64, error) {
		o, err := m.registry.Get(conn)
		if err != nil {
			return 0, err
		}
		res, err := o.Execute(ctx, conn, o.BuildDelete(m.table, m.pk), []any{id}, false)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected, nil
	})
	m.invalidate(ctx, id)
	return n > 0, err
}

// update applies the columns of data to the row with key id on every
// backend and returns the primary's resulting record.
func (m *Model) update(ctx context.Context, id any, data *mirrorm.Record) (*mirrorm.Record, error) {
	columns := data.Keys()
	if err := validColumns("update", columns); err != nil {
		return nil, err
	}
	args := append(data.Values(), id)
	rec, err := mirror.Mirror(ctx, m.coord, "update", func(ctx context.Context, conn *sql.Connection) (*mirrorm.Record, error) {
		o, err := m.registry.Get(conn)
		if err != nil {
			return nil, err
		}
		res, err := o.Execute(ctx, conn, o.BuildUpdate(m.table, columns, m.pk), args, true)
		if err != nil {
			return nil, err
		}
		return o.NormalizeUpdate(ctx, conn, m.table, m.pk, id, res)
	})
	m.invalidate(ctx, id)
	return rec, err
}

// find reads the row with the given key from the primary.
func (m *Model) find(ctx context.Context, id any) (*mirrorm.Record, error) {
	o, err := m.registry.Get(m.primary)
	if err != nil {
		return nil, err
	}
	res, err := o.Execute(ctx, m.primary, o.BuildSelect(m.table, m.pk+" = "+o.Placeholder(1)), []any{id}, true)
	if err != nil {
		return nil, err
	}
	row := res.First()
	if row == nil {
		return nil, nil
	}
	columns, err := o.ListColumns(ctx, m.primary, m.table)
	if err != nil {
		return nil, err
	}
	return mirrorm.RecordOf(columns, row), nil
}

func (m *Model) hydrate(rec *mirrorm.Record) *Entity {
	return &Entity{model: m, data: rec, dirty: make(map[string]bool)}
}

// ready fails with a ConfigurationError when the binding is incomplete.
func (m *Model) ready(op string) error {
	switch {
	case m.table == "":
		return mirrorm.NewConfigurationError(op, "table name not specified")
	case !sql.ValidIdentifier(m.table):
		return mirrorm.NewConfigurationError(op, "invalid table name %q", m.table)
	case !sql.ValidIdentifier(m.pk):
		return mirrorm.NewConfigurationError(op, "invalid primary key %q", m.pk)
	case m.primary == nil || m.coord == nil:
		return mirrorm.NewConfigurationError(op, "database connection not set, call Bind first")
	}
	return nil
}

func (m *Model) cached(ctx context.Context, key string) *mirrorm.Record {
	b, err := m.cache.Get(ctx, key)
	if err != nil || b == nil {
		m.cacheErr(ctx, "get", err)
		if m.metrics != nil {
			m.metrics.CacheMiss(m.table)
		}
		return nil
	}
	rec, err := cache.DecodeRecord(b)
	if err != nil {
		m.cacheErr(ctx, "decode", err)
		if m.metrics != nil {
			m.metrics.CacheMiss(m.table)
		}
		return nil
	}
	if m.metrics != nil {
		m.metrics.CacheHit(m.table)
	}
	return rec
}

func (m *Model) invalidate(ctx context.Context, id any) {
	if m.cache == nil {
		return
	}
	m.cacheErr(ctx, "invalidate", m.cache.Delete(ctx, mirrorm.CacheKey{Table: m.table, ID: id}.String()))
}

// cacheErr logs cache failures. The cache never fails an operation.
func (m *Model) cacheErr(ctx context.Context, action string, err error) {
	if err != nil {
		m.logger.WarnContext(ctx, "cache "+action+" failed", "table", m.table, "error", err)
	}
}

// log writes the outcome line of an operation.
func (m *Model) log(ctx context.Context, action string, id any, err error, attrs ...any) {
	args := []any{"action", action, "table", m.table}
	if m.primary != nil {
		args = append(args, "backend", m.primary.String())
	}
	if id != nil {
		args = append(args, "record_id", id)
	}
	args = append(args, "success", err == nil)
	args = append(args, attrs...)
	switch {
	case err == nil:
		m.logger.InfoContext(ctx, "operation completed", args...)
	case mirrorm.IsMirrorError(err):
		m.logger.WarnContext(ctx, "operation incomplete on shadows", append(args, "error", err)...)
	default:
		m.logger.ErrorContext(ctx, "operation failed", append(args, "error", err)...)
	}
}

func validColumns(op string, columns []string) error {
	for _, c := range columns {
		if !sql.ValidIdentifier(c) {
			return mirrorm.NewValidationError(op, c, "invalid column name")
		}
	}
	return nil
}

// isSet reports whether a primary-key value is usable: not nil, zero or
// the empty string.
func isSet(v any) bool {
	switch v := mirrorm.Coerce(v).(type) {
	case nil:
		return false
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

func toInt64(v any) (int64, error) {
	switch v := mirrorm.Coerce(v).(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, errors.New("mirrorm: unexpected count value")
}
